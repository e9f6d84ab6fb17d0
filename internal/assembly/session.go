package assembly

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// ErrNoClarification is returned when Confirm or Cancel is called with no
// clarification pending.
var ErrNoClarification = errors.New("no clarification pending")

// Request is what goes upstream to start or resume an exchange. On a
// clarification resume the snapshot fields travel back unchanged so the
// server can reconnect the exchange to its tool call.
type Request struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`

	// Clarification resume context, absent on a fresh request.
	OriginalIntent  string          `json:"original_intent,omitempty"`
	OriginalRequest string          `json:"original_request,omitempty"`
	MessagesContext json.RawMessage `json:"messages_context,omitempty"`
	ToolCallID      string          `json:"tool_call_id,omitempty"`
}

// Session is the explicit per-conversation context: the current draft plus
// the clarification slot shared across consecutive drafts. Drafts within a
// session are strictly sequential, so Session needs no locking.
type Session struct {
	ID            string
	draft         *Draft
	clarification *Clarification
}

// NewSession starts a session with a fresh idle draft.
func NewSession() *Session {
	return &Session{
		ID:    uuid.NewString(),
		draft: NewDraft(),
	}
}

// Draft returns the current draft.
func (s *Session) Draft() *Draft {
	return s.draft
}

// Begin marks the current draft as streaming and returns the outgoing
// request for it.
func (s *Session) Begin(query string) *Request {
	s.draft.Start()
	return &Request{SessionID: s.ID, Query: query}
}

// Clarification returns the pending snapshot, or nil.
func (s *Session) Clarification() *Clarification {
	return s.clarification
}

func (s *Session) setClarification(c Clarification) {
	s.clarification = &c
}

// Confirm resolves the pending clarification with the confirmed or edited
// request text (empty means accept the rewrite as-is). It clears the slot,
// replaces the draft with a fresh streaming one, and returns the resume
// request carrying the snapshot context forward unchanged.
func (s *Session) Confirm(edited string) (*Request, error) {
	c := s.clarification
	if c == nil {
		return nil, ErrNoClarification
	}
	query := edited
	if query == "" {
		query = c.RewrittenRequest
	}

	s.clarification = nil
	s.draft = NewDraft()
	s.draft.Start()

	return &Request{
		SessionID:       s.ID,
		Query:           query,
		OriginalIntent:  c.OriginalIntent,
		OriginalRequest: c.OriginalRequest,
		MessagesContext: c.MessagesContext,
		ToolCallID:      c.ToolCallID,
	}, nil
}

// Cancel abandons the pending clarification. The interrupted draft completes
// with whatever content it had; no new request goes out.
func (s *Session) Cancel() error {
	if s.clarification == nil {
		return ErrNoClarification
	}
	s.clarification = nil
	s.draft.State = StateCompleted
	return nil
}

// Reset discards the current draft and starts a new idle one, for the next
// message in the same session. A pending clarification survives a reset only
// if the caller has not resolved it; normally Confirm or Cancel runs first.
func (s *Session) Reset() {
	s.draft = NewDraft()
}
