package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/insightlab/reportstream/internal/assembly"
	apierrors "github.com/insightlab/reportstream/internal/errors"
	"github.com/insightlab/reportstream/internal/event"
	"github.com/insightlab/reportstream/internal/logger"
	"github.com/insightlab/reportstream/internal/metrics"
	"github.com/insightlab/reportstream/internal/report"
	"github.com/insightlab/reportstream/internal/store"
)

// chatRequest is the caller's side of POST /api/chat/data.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query" binding:"required"`
}

// clarificationRequest resolves a pending clarification.
type clarificationRequest struct {
	SessionID  string `json:"session_id" binding:"required"`
	Action     string `json:"action" binding:"required"` // "confirm" or "cancel"
	EditedText string `json:"edited_text"`
}

// handleChatData opens an upstream stream for the query and relays it to the
// caller as SSE while assembling the draft server-side.
func (s *Server) handleChatData(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid request body", map[string]interface{}{"reason": err.Error()})
		return
	}

	sess := s.session(req.SessionID)
	if sess.Clarification() != nil {
		apierrors.AbortWithConflict(c, "clarification pending, confirm or cancel it first",
			map[string]interface{}{"session_id": sess.ID})
		return
	}
	// A finished draft means this is the next message in the conversation.
	if sess.Draft().State.Terminal() {
		sess.Reset()
	}

	s.runStream(c, sess, sess.Begin(req.Query))
}

// handleClarification confirms or cancels a pending clarification. Confirm
// starts a fresh upstream stream relayed like handleChatData.
func (s *Server) handleClarification(c *gin.Context) {
	var req clarificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid request body", map[string]interface{}{"reason": err.Error()})
		return
	}

	sess := s.session(req.SessionID)
	switch req.Action {
	case "cancel":
		if err := sess.Cancel(); err != nil {
			apierrors.AbortWithConflict(c, err.Error(), nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "canceled", "session_id": sess.ID})

	case "confirm":
		resume, err := sess.Confirm(req.EditedText)
		if err != nil {
			apierrors.AbortWithConflict(c, err.Error(), nil)
			return
		}
		s.runStream(c, sess, resume)

	default:
		apierrors.AbortWithBadRequest(c, "action must be confirm or cancel",
			map[string]interface{}{"action": req.Action})
	}
}

// runStream wires the relay observers, reads upstream, and finishes the SSE
// response. Transport failures before the first frame become a 502; after
// that the error travels in-band.
func (s *Server) runStream(c *gin.Context, sess *assembly.Session, req *assembly.Request) {
	ctx := logger.WithOperation(logger.WithSessionID(c.Request.Context(), sess.ID), "stream")
	streamLog := s.log.WithContext(ctx)

	relay := newSSERelay(c)
	asm := assembly.NewAssembler(sess, s.relayObservers(ctx, relay, sess), streamLog.Logger)

	err := s.client.Stream(ctx, req, asm)
	if err != nil {
		if !relay.started() {
			apierrors.AbortWithBadGateway(c, "upstream stream failed",
				map[string]interface{}{"reason": err.Error()})
			return
		}
		s.log.LogError(ctx, err, "stream failed mid-relay")
		relay.send(gin.H{"type": event.TypeError, "error": err.Error()})
	}
	relay.finish()
}

// relayObservers re-emit each applied event to the caller and hook in
// persistence and monitoring.
func (s *Server) relayObservers(ctx context.Context, relay *sseRelay, sess *assembly.Session) assembly.Observers {
	return assembly.Observers{
		OnIntent: func(intent string) {
			relay.send(gin.H{"type": event.TypeIntent, "intent": intent})
		},
		OnStatus: func(message string) {
			relay.send(gin.H{"type": event.TypeStatus, "message": message})
		},
		OnThinkingStart: func() {
			relay.send(gin.H{"type": event.TypeThinkingStart})
		},
		OnThinking: func(delta string) {
			relay.send(gin.H{"type": event.TypeThinking, "content": delta})
		},
		OnThinkingEnd: func() {
			relay.send(gin.H{"type": event.TypeThinkingEnd})
		},
		OnContent: func(delta string) {
			relay.send(gin.H{"type": event.TypeContent, "content": delta})
		},
		OnAnalysisStart: func() {
			relay.send(gin.H{"type": event.TypeAnalysisStart})
		},
		OnAnalysis: func(delta string) {
			relay.send(gin.H{"type": event.TypeAnalysis, "content": delta})
		},
		OnAnalysisEnd: func() {
			relay.send(gin.H{"type": event.TypeAnalysisEnd})
		},
		OnSQL: func(sql string) {
			relay.send(gin.H{"type": event.TypeSQL, "sql": sql})
		},
		OnSQLExecuting: func() {
			relay.send(gin.H{"type": event.TypeSQLExecuting})
		},
		OnSQLExecuted: func(run assembly.SQLRun) {
			relay.send(gin.H{"type": event.TypeSQLExecuted, "sql": run.SQL, "row_count": run.RowCount})
		},
		OnData: func(result *report.QueryResult) {
			relay.send(gin.H{"type": event.TypeData, "data": result})
		},
		OnReportCreated: func(reportID string) {
			relay.send(gin.H{"type": event.TypeReportCreated, "report_id": reportID})
		},
		OnOutline: func(outline *report.Outline) {
			relay.send(gin.H{"type": event.TypeOutline, "data": outline})
		},
		OnSectionStart: func(index, total int, title string) {
			relay.send(gin.H{"type": event.TypeSectionStart, "index": index, "total": total, "title": title})
		},
		OnSectionComplete: func(index int, section *report.Section) {
			relay.send(gin.H{"type": event.TypeSectionComplete, "index": index, "section": section})
		},
		OnSectionError: func(failure assembly.SectionFailure) {
			relay.send(gin.H{"type": event.TypeSectionError, "index": failure.Index,
				"title": failure.Title, "error": failure.Message})
		},
		OnHeartbeat: func(completed, pending int) {
			relay.send(gin.H{"type": event.TypeHeartbeat, "completed": completed, "pending": pending})
			s.hub.Heartbeat(sess.ID)
		},
		OnAgentEvent: func(ev *event.Event) {
			s.hub.Publish(sess.ID, ev)
		},
		OnClarification: func(cl assembly.Clarification) {
			relay.send(gin.H{
				"type":              event.TypeClarification,
				"rewritten_request": cl.RewrittenRequest,
				"original_intent":   cl.OriginalIntent,
				"original_request":  cl.OriginalRequest,
				"messages_context":  cl.MessagesContext,
				"tool_call_id":      cl.ToolCallID,
			})
		},
		OnComplete: func(r *report.Report) {
			relay.send(gin.H{"type": event.TypeComplete, "report": r})
			s.persistReport(ctx, sess.ID, r, relay)
		},
		OnError: func(message string) {
			relay.send(gin.H{"type": event.TypeError, "error": message})
		},
		OnDone: func() {
			relay.send(gin.H{"type": event.TypeDone})
		},
	}
}

// persistReport finalizes the view, stores it, and tells the caller where to
// fetch it again.
func (s *Server) persistReport(ctx context.Context, sessionID string, r *report.Report, relay *sseRelay) {
	view := s.finalizer.Finalize(r)
	metrics.ReportsAssembled.Inc()
	for _, sec := range view.Sections {
		for _, disc := range sec.Discoveries {
			for _, seg := range disc.Segments {
				if seg.ChartError != "" {
					metrics.ChartErrorsTotal.Inc()
				}
			}
		}
	}

	rec := &store.Record{
		ReportID:  r.ReportID,
		SessionID: sessionID,
		Title:     r.Title,
		CreatedAt: time.Now().UTC(),
		Report:    r,
		View:      view,
	}
	// The store write must outlive the caller's stream, so it gets its own
	// timeout rather than the request context.
	putCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Put(putCtx, rec); err != nil {
		s.log.LogError(logger.WithReportID(ctx, r.ReportID), err, "storing report failed")
		relay.send(gin.H{"type": event.TypeError, "error": "report assembled but not stored"})
		return
	}
	relay.send(gin.H{"type": "report_stored", "report_id": r.ReportID})
}

// sseRelay writes SSE frames to the response, lazily switching the response
// into stream mode on the first frame.
type sseRelay struct {
	c  *gin.Context
	mu sync.Mutex
	on bool
}

func newSSERelay(c *gin.Context) *sseRelay {
	return &sseRelay{c: c}
}

func (r *sseRelay) started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

func (r *sseRelay) send(payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureHeaders()

	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(r.c.Writer, "data: %s\n\n", b)
	r.c.Writer.Flush()
}

func (r *sseRelay) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureHeaders()
	fmt.Fprint(r.c.Writer, "data: [DONE]\n\n")
	r.c.Writer.Flush()
}

func (r *sseRelay) ensureHeaders() {
	if r.on {
		return
	}
	r.on = true
	h := r.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	r.c.Writer.WriteHeader(http.StatusOK)
}
