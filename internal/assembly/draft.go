// Package assembly owns the client-facing state of one analysis exchange: a
// Draft accumulated from the typed event stream, the clarification handshake
// that can interrupt it, and the finalization step that turns a completed
// report into renderer-ready view models.
package assembly

import (
	"encoding/json"

	"github.com/insightlab/reportstream/internal/report"
)

// State of one draft. Transitions only move forward; Completed and Errored
// are terminal.
type State string

const (
	StateIdle                  State = "idle"
	StateStreaming             State = "streaming"
	StateAwaitingClarification State = "awaiting_clarification"
	StateCompleted             State = "completed"
	StateErrored               State = "errored"
)

// Terminal reports whether no further events will be applied.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored
}

// SQLRun is one executed statement and its result size.
type SQLRun struct {
	SQL      string `json:"sql"`
	RowCount int    `json:"row_count"`
}

// SectionFailure records a section the upstream gave up on. The rest of the
// report still completes around it.
type SectionFailure struct {
	Index   int    `json:"index"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

// Draft is the mutable accumulator for one request/response exchange. The
// assembler owns it exclusively until the stream ends; observers only ever
// see read-only slices of it.
type Draft struct {
	State  State  `json:"state"`
	Intent string `json:"intent,omitempty"`

	ReportID string          `json:"report_id,omitempty"`
	Outline  *report.Outline `json:"outline,omitempty"`

	// Delta-accumulated text channels.
	Thinking string `json:"thinking,omitempty"`
	Content  string `json:"content,omitempty"`
	Analysis string `json:"analysis,omitempty"`

	// Progress flags for loading indicators. They never gate the final text.
	ThinkingActive bool `json:"thinking_active,omitempty"`
	AnalysisActive bool `json:"analysis_active,omitempty"`
	SQLExecuting   bool `json:"sql_executing,omitempty"`

	SQL        string   `json:"sql,omitempty"`
	SQLHistory []SQLRun `json:"sql_history,omitempty"`

	// Last complete query result. A later data event replaces it whole.
	Data *report.QueryResult `json:"data,omitempty"`

	// Sections that streamed in ahead of the final report.
	Sections        []report.Section `json:"sections,omitempty"`
	SectionFailures []SectionFailure `json:"section_failures,omitempty"`
	SectionsTotal   int              `json:"sections_total,omitempty"`

	Report *report.Report `json:"report,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// NewDraft returns an idle draft. Start it when the request goes out.
func NewDraft() *Draft {
	return &Draft{State: StateIdle}
}

// Start marks the request as sent. No-op once the draft has left Idle.
func (d *Draft) Start() {
	if d.State == StateIdle {
		d.State = StateStreaming
	}
}

// Clarification is the snapshot taken when the server asks the user to
// confirm a rewritten request. It lives on the session, not the draft: the
// draft that triggered it is done, and the next draft consumes it.
type Clarification struct {
	RewrittenRequest string          `json:"rewritten_request"`
	OriginalIntent   string          `json:"original_intent,omitempty"`
	OriginalRequest  string          `json:"original_request"`
	MessagesContext  json.RawMessage `json:"messages_context,omitempty"`
	ToolCallID       string          `json:"tool_call_id,omitempty"`
}
