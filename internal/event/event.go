// Package event defines the typed frames of the analysis stream protocol and
// their tolerant JSON decoding. One Event struct covers the whole vocabulary;
// Type is the discriminant and each variant populates only its own fields,
// the same shape the upstream backend serializes.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/insightlab/reportstream/internal/report"
	"github.com/insightlab/reportstream/internal/sse"
)

// Main event discriminants, in rough order of appearance on the wire.
const (
	TypeIntent          = "intent"
	TypeClarification   = "clarification"
	TypeAgentEvent      = "agent_event"
	TypeReportCreated   = "report_created"
	TypeStatus          = "status"
	TypeOutline         = "outline"
	TypeSectionStart    = "section_start"
	TypeHeartbeat       = "heartbeat"
	TypeSectionComplete = "section_complete"
	TypeSectionError    = "section_error"
	TypeSQLExecuted     = "sql_executed"
	TypeComplete        = "complete"
	TypeThinkingStart   = "thinking_start"
	TypeThinking        = "thinking"
	TypeThinkingEnd     = "thinking_end"
	TypeContent         = "content"
	TypeSQL             = "sql"
	TypeSQLExecuting    = "sql_executing"
	TypeData            = "data"
	TypeAnalysisStart   = "analysis_start"
	TypeAnalysis        = "analysis"
	TypeAnalysisEnd     = "analysis_end"
	TypeError           = "error"
	TypeDone            = "done"
)

// Intent values carried by an intent event.
const (
	IntentChat   = "chat"
	IntentReport = "report"
)

// Sub-agent lifecycle discriminants carried by agent_event frames.
const (
	AgentStart      = "start"
	AgentRequest    = "request"
	AgentChunk      = "chunk"
	AgentResponse   = "response"
	AgentToolCall   = "tool_call"
	AgentToolResult = "tool_result"
	AgentComplete   = "complete"
	AgentError      = "error"
)

// Event is one decoded protocol frame. Arrival order is significant and is
// the only ordering guarantee the protocol gives.
type Event struct {
	Type string `json:"type"`

	// intent
	Intent string `json:"intent,omitempty"`

	// status / heartbeat / error-adjacent free text
	Message string `json:"message,omitempty"`

	// thinking / content / analysis deltas, and agent chunk text
	Content string `json:"content,omitempty"`

	// sql / sql_executed
	SQL      string `json:"sql,omitempty"`
	RowCount int    `json:"row_count,omitempty"`

	// data
	Data *report.QueryResult `json:"data,omitempty"`

	// report_created / complete
	ReportID string         `json:"report_id,omitempty"`
	Report   *report.Report `json:"report,omitempty"`

	// outline. The backend wraps the outline in a "data" field for this
	// variant; see UnmarshalJSON.
	Outline *report.Outline `json:"-"`

	// section_start / section_complete / section_error / heartbeat progress
	Index     int             `json:"index,omitempty"`
	Total     int             `json:"total,omitempty"`
	Title     string          `json:"title,omitempty"`
	Section   *report.Section `json:"section,omitempty"`
	Completed int             `json:"completed,omitempty"`
	Pending   int             `json:"pending,omitempty"`

	// clarification snapshot
	RewrittenRequest string          `json:"rewritten_request,omitempty"`
	OriginalIntent   string          `json:"original_intent,omitempty"`
	OriginalRequest  string          `json:"original_request,omitempty"`
	MessagesContext  json.RawMessage `json:"messages_context,omitempty"`
	ToolCallID       string          `json:"tool_call_id,omitempty"`

	// agent_event
	AgentID    string          `json:"agent_id,omitempty"`
	AgentType  string          `json:"agent_type,omitempty"`
	AgentLabel string          `json:"agent_label,omitempty"`
	EventType  string          `json:"event_type,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	AgentData  json.RawMessage `json:"-"`

	// error
	Error string `json:"error,omitempty"`
}

// eventAlias strips Event's methods so decoding inside UnmarshalJSON does not
// recurse.
type eventAlias Event

// UnmarshalJSON decodes an event, resolving the overloaded "data" field: an
// outline event carries the outline there, a data event carries the query
// result, and an agent_event carries the sub-agent payload.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w struct {
		eventAlias
		RawData json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Event(w.eventAlias)

	if len(w.RawData) == 0 {
		return nil
	}

	switch e.Type {
	case TypeOutline:
		var outline report.Outline
		if err := json.Unmarshal(w.RawData, &outline); err != nil {
			return fmt.Errorf("malformed outline payload: %w", err)
		}
		e.Outline = &outline
	case TypeData:
		var result report.QueryResult
		if err := json.Unmarshal(w.RawData, &result); err != nil {
			return fmt.Errorf("malformed query result payload: %w", err)
		}
		e.Data = &result
	case TypeAgentEvent:
		e.AgentData = w.RawData
	}
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON: the outline, query result, and
// sub-agent payloads fold back into the overloaded "data" field so a
// re-serialized event matches its wire shape.
func (e Event) MarshalJSON() ([]byte, error) {
	w := struct {
		eventAlias
		RawData json.RawMessage `json:"data,omitempty"`
	}{eventAlias: eventAlias(e)}

	switch e.Type {
	case TypeOutline:
		if e.Outline != nil {
			b, err := json.Marshal(e.Outline)
			if err != nil {
				return nil, err
			}
			w.RawData = b
		}
	case TypeData:
		// The wrapper's RawData shadows the alias's Data field, so the
		// query result must be re-encoded here.
		if e.Data != nil {
			b, err := json.Marshal(e.Data)
			if err != nil {
				return nil, err
			}
			w.RawData = b
		}
	case TypeAgentEvent:
		w.RawData = e.AgentData
	}
	return json.Marshal(w)
}

// Decode parses one reassembled frame into an Event. A decode failure is
// local to the frame: the caller logs it and moves on, the stream continues.
func Decode(frame sse.Frame) (*Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(frame.Payload), &ev); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("frame missing type discriminant")
	}
	return &ev, nil
}
