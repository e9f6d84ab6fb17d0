package assembly

import (
	"log/slog"

	"github.com/insightlab/reportstream/internal/event"
	"github.com/insightlab/reportstream/internal/report"
)

// Observers are the callbacks the dispatcher fires as events arrive. Every
// field is optional; nil callbacks are skipped. Callbacks receive read-only
// views and must not retain or mutate them.
type Observers struct {
	OnIntent          func(intent string)
	OnStatus          func(message string)
	OnThinkingStart   func()
	OnThinking        func(delta string)
	OnThinkingEnd     func()
	OnContent         func(delta string)
	OnAnalysisStart   func()
	OnAnalysis        func(delta string)
	OnAnalysisEnd     func()
	OnSQL             func(sql string)
	OnSQLExecuting    func()
	OnSQLExecuted     func(run SQLRun)
	OnData            func(result *report.QueryResult)
	OnReportCreated   func(reportID string)
	OnOutline         func(outline *report.Outline)
	OnSectionStart    func(index, total int, title string)
	OnSectionComplete func(index int, section *report.Section)
	OnSectionError    func(failure SectionFailure)
	OnHeartbeat       func(completed, pending int)
	OnAgentEvent      func(ev *event.Event)
	OnClarification   func(c Clarification)
	OnComplete        func(r *report.Report)
	OnError           func(message string)
	OnDone            func()
}

// Assembler routes decoded events into one draft. It holds no state of its
// own beyond the draft and the session's clarification slot: replaying the
// same ordered event sequence into a fresh draft produces an identical draft.
type Assembler struct {
	draft   *Draft
	session *Session
	obs     Observers
	log     *slog.Logger
}

// NewAssembler wires an assembler to a session's current draft. A nil logger
// falls back to slog.Default.
func NewAssembler(session *Session, obs Observers, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{
		draft:   session.Draft(),
		session: session,
		obs:     obs,
		log:     log,
	}
}

// Draft exposes the accumulator, for callers that hand it off after the
// stream ends.
func (a *Assembler) Draft() *Draft {
	return a.draft
}

// Apply dispatches one event into the draft. Unknown types are logged and
// ignored; events after a terminal state are dropped.
func (a *Assembler) Apply(ev *event.Event) {
	d := a.draft
	if d.State.Terminal() {
		a.log.Debug("event after terminal state dropped",
			"type", ev.Type, "state", string(d.State))
		return
	}
	d.Start()

	// While a clarification is pending the server must not be producing
	// content for this draft; only a terminal error is still honored.
	if d.State == StateAwaitingClarification && ev.Type != event.TypeError {
		a.log.Debug("event during clarification dropped", "type", ev.Type)
		return
	}

	switch ev.Type {
	case event.TypeIntent:
		d.Intent = ev.Intent
		a.notifyIntent(ev.Intent)

	case event.TypeStatus:
		a.notifyStatus(ev.Message)

	case event.TypeHeartbeat:
		if a.obs.OnHeartbeat != nil {
			a.obs.OnHeartbeat(ev.Completed, ev.Pending)
		}

	case event.TypeThinkingStart:
		d.ThinkingActive = true
		if a.obs.OnThinkingStart != nil {
			a.obs.OnThinkingStart()
		}
	case event.TypeThinking:
		d.Thinking += ev.Content
		if a.obs.OnThinking != nil {
			a.obs.OnThinking(ev.Content)
		}
	case event.TypeThinkingEnd:
		d.ThinkingActive = false
		if a.obs.OnThinkingEnd != nil {
			a.obs.OnThinkingEnd()
		}

	case event.TypeContent:
		d.Content += ev.Content
		if a.obs.OnContent != nil {
			a.obs.OnContent(ev.Content)
		}

	case event.TypeAnalysisStart:
		d.AnalysisActive = true
		if a.obs.OnAnalysisStart != nil {
			a.obs.OnAnalysisStart()
		}
	case event.TypeAnalysis:
		d.Analysis += ev.Content
		if a.obs.OnAnalysis != nil {
			a.obs.OnAnalysis(ev.Content)
		}
	case event.TypeAnalysisEnd:
		d.AnalysisActive = false
		if a.obs.OnAnalysisEnd != nil {
			a.obs.OnAnalysisEnd()
		}

	case event.TypeSQL:
		d.SQL = ev.SQL
		if a.obs.OnSQL != nil {
			a.obs.OnSQL(ev.SQL)
		}
	case event.TypeSQLExecuting:
		d.SQLExecuting = true
		if a.obs.OnSQLExecuting != nil {
			a.obs.OnSQLExecuting()
		}
	case event.TypeSQLExecuted:
		d.SQLExecuting = false
		run := SQLRun{SQL: ev.SQL, RowCount: ev.RowCount}
		d.SQLHistory = append(d.SQLHistory, run)
		if a.obs.OnSQLExecuted != nil {
			a.obs.OnSQLExecuted(run)
		}

	case event.TypeData:
		d.Data = ev.Data
		if a.obs.OnData != nil {
			a.obs.OnData(ev.Data)
		}

	case event.TypeReportCreated:
		d.ReportID = ev.ReportID
		if a.obs.OnReportCreated != nil {
			a.obs.OnReportCreated(ev.ReportID)
		}

	case event.TypeOutline:
		d.Outline = ev.Outline
		if ev.Outline != nil {
			d.SectionsTotal = len(ev.Outline.Sections)
		}
		if a.obs.OnOutline != nil {
			a.obs.OnOutline(ev.Outline)
		}

	case event.TypeSectionStart:
		if ev.Total > 0 {
			d.SectionsTotal = ev.Total
		}
		if a.obs.OnSectionStart != nil {
			a.obs.OnSectionStart(ev.Index, ev.Total, ev.Title)
		}

	case event.TypeSectionComplete:
		if ev.Section != nil {
			d.Sections = append(d.Sections, *ev.Section)
		}
		if a.obs.OnSectionComplete != nil {
			a.obs.OnSectionComplete(ev.Index, ev.Section)
		}

	case event.TypeSectionError:
		failure := SectionFailure{
			Index:   ev.Index,
			Title:   ev.Title,
			Message: firstNonEmpty(ev.Error, ev.Message),
		}
		d.SectionFailures = append(d.SectionFailures, failure)
		if a.obs.OnSectionError != nil {
			a.obs.OnSectionError(failure)
		}

	case event.TypeAgentEvent:
		if a.obs.OnAgentEvent != nil {
			a.obs.OnAgentEvent(ev)
		}

	case event.TypeClarification:
		c := Clarification{
			RewrittenRequest: ev.RewrittenRequest,
			OriginalIntent:   ev.OriginalIntent,
			OriginalRequest:  ev.OriginalRequest,
			MessagesContext:  ev.MessagesContext,
			ToolCallID:       ev.ToolCallID,
		}
		d.State = StateAwaitingClarification
		a.session.setClarification(c)
		if a.obs.OnClarification != nil {
			a.obs.OnClarification(c)
		}

	case event.TypeComplete:
		if ev.Report == nil {
			// Protocol error: a complete without its report is terminal,
			// but content streamed so far stays visible.
			d.State = StateErrored
			d.ErrorMessage = "complete event missing report payload"
			a.log.Error("complete event missing report payload", "report_id", d.ReportID)
			a.notifyError(d.ErrorMessage)
			return
		}
		d.Report = ev.Report
		if d.ReportID == "" {
			d.ReportID = ev.Report.ReportID
		}
		d.State = StateCompleted
		if a.obs.OnComplete != nil {
			a.obs.OnComplete(ev.Report)
		}

	case event.TypeError:
		d.State = StateErrored
		d.ErrorMessage = firstNonEmpty(ev.Error, ev.Message)
		a.notifyError(d.ErrorMessage)

	case event.TypeDone:
		d.State = StateCompleted
		if a.obs.OnDone != nil {
			a.obs.OnDone()
		}

	default:
		a.log.Warn("unknown event type ignored", "type", ev.Type)
	}
}

func (a *Assembler) notifyIntent(intent string) {
	if a.obs.OnIntent != nil {
		a.obs.OnIntent(intent)
	}
}

func (a *Assembler) notifyStatus(message string) {
	if a.obs.OnStatus != nil {
		a.obs.OnStatus(message)
	}
}

func (a *Assembler) notifyError(message string) {
	if a.obs.OnError != nil {
		a.obs.OnError(message)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
