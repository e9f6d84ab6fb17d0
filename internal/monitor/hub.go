// Package monitor fans the sub-agent activity of a session out to observer
// clients over websockets. Observers are read-only; they never influence the
// session's draft.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insightlab/reportstream/internal/event"
)

const (
	// subscriberBuffer absorbs bursts; a subscriber that falls this far
	// behind starts losing events rather than stalling the stream.
	subscriberBuffer = 100

	// heartbeatInterval keeps idle monitor connections alive.
	heartbeatInterval = 15 * time.Second
)

// AgentActivity is one monitor frame: either a sub-agent event or a
// heartbeat.
type AgentActivity struct {
	Type      string       `json:"type"`
	SessionID string       `json:"session_id"`
	Event     *event.Event `json:"event,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Subscriber is one monitor client attached to a session.
type Subscriber struct {
	ID string
	Ch chan AgentActivity

	ctx    context.Context
	cancel context.CancelFunc
}

// Done reports client disconnect or unsubscribe.
func (s *Subscriber) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Hub routes agent activity by session id.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Subscriber
	log      *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		sessions: make(map[string]map[string]*Subscriber),
		log:      log,
	}
}

// Subscribe attaches an observer to a session. The subscriber is removed
// when ctx is canceled or Unsubscribe runs.
func (h *Hub) Subscribe(ctx context.Context, sessionID string) *Subscriber {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscriber{
		ID:     uuid.NewString(),
		Ch:     make(chan AgentActivity, subscriberBuffer),
		ctx:    subCtx,
		cancel: cancel,
	}

	h.mu.Lock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]*Subscriber)
	}
	h.sessions[sessionID][sub.ID] = sub
	count := len(h.sessions[sessionID])
	h.mu.Unlock()

	h.log.Debug("monitor subscriber joined",
		"session_id", sessionID, "subscriber_id", sub.ID, "subscribers", count)
	return sub
}

// Unsubscribe detaches an observer and closes its channel.
func (h *Hub) Unsubscribe(sessionID, subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.sessions[sessionID]
	sub, ok := subs[subscriberID]
	if !ok {
		return
	}
	delete(subs, subscriberID)
	if len(subs) == 0 {
		delete(h.sessions, sessionID)
	}
	sub.cancel()
	close(sub.Ch)
}

// Publish sends an agent event to every subscriber of the session. Sends are
// non-blocking: a full subscriber buffer drops the event for that subscriber
// only.
func (h *Hub) Publish(sessionID string, ev *event.Event) {
	h.broadcast(sessionID, AgentActivity{
		Type:      "agent_event",
		SessionID: sessionID,
		Event:     ev,
		Timestamp: time.Now().UTC(),
	})
}

// Heartbeat keeps subscriber connections alive between agent events.
func (h *Hub) Heartbeat(sessionID string) {
	h.broadcast(sessionID, AgentActivity{
		Type:      "heartbeat",
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) broadcast(sessionID string, activity AgentActivity) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.sessions[sessionID] {
		select {
		case sub.Ch <- activity:
		default:
			h.log.Warn("monitor subscriber lagging, dropping event",
				"session_id", sessionID, "subscriber_id", sub.ID)
		}
	}
}

// SubscriberCount reports how many observers a session has.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// HeartbeatInterval is exposed for the websocket write loop.
func HeartbeatInterval() time.Duration {
	return heartbeatInterval
}
