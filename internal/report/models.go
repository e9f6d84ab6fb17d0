// Package report defines the report domain model: the structures the upstream
// analysis pipeline emits and the assembled view models this gateway serves.
package report

import "encoding/json"

// Chart types supported by the resolver. Anything else is surfaced as a
// per-chart error, never a stream failure.
const (
	ChartTypeBar      = "bar"
	ChartTypeLine     = "line"
	ChartTypePie      = "pie"
	ChartTypeDualAxis = "dual_axis_mixed"
	ChartTypeHeatmap  = "heatmap"
)

// Axis tags on a DataSource for dual-axis charts.
const (
	AxisPrimary   = "primary"
	AxisSecondary = "secondary"
)

// Row is one record of tabular query output. The schema is implicit: it is
// determined per chart from the first row's keys. Values are string, float64
// or nil after JSON decoding.
type Row map[string]interface{}

// DataSource names the fields a chart draws from.
type DataSource struct {
	XAxis     string   `json:"x_axis"`
	YAxis     []string `json:"y_axis"`
	Axis      string   `json:"axis,omitempty"`       // "primary" or "secondary"
	DataLabel string   `json:"data_label,omitempty"` // display label
}

// Chart is a loosely-specified chart config plus its backing rows, as emitted
// by the upstream chart agent.
type Chart struct {
	ChartID      string       `json:"chart_id"`
	ChartType    string       `json:"chart_type"`
	Title        string       `json:"title"`
	DataSources  []DataSource `json:"data_sources"`
	RenderedData []Row        `json:"rendered_data"`
	Error        string       `json:"error,omitempty"`
}

// Discovery is one finding within a section: narrative markdown (with
// {{CHART:<id>}} placeholders) plus the charts it references.
type Discovery struct {
	DiscoveryID        string  `json:"discovery_id"`
	Title              string  `json:"title"`
	Insight            string  `json:"insight"`
	Charts             []Chart `json:"charts"`
	DataInterpretation string  `json:"data_interpretation,omitempty"`
}

// Section is one chapter of a report.
type Section struct {
	SectionID    string      `json:"section_id"`
	Name         string      `json:"name"`
	AnalysisGoal string      `json:"analysis_goal,omitempty"`
	Discoveries  []Discovery `json:"discoveries"`
	Conclusion   string      `json:"conclusion,omitempty"`
}

// Report is the finalized output of one report-generation exchange.
type Report struct {
	ReportID  string    `json:"report_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	CreatedAt string    `json:"created_at"`
	Sections  []Section `json:"sections"`
}

// OutlineSection is one planned chapter, before research runs.
type OutlineSection struct {
	SectionID           string   `json:"section_id"`
	Title               string   `json:"title"`
	ResearchDescription string   `json:"research_description,omitempty"`
	AnalysisMethod      string   `json:"analysis_method,omitempty"`
	KeyParameters       []string `json:"key_parameters,omitempty"`
	ResearchFocus       string   `json:"research_focus,omitempty"`
}

// Outline is the planned report structure announced before sections stream in.
// Parameters is model-defined and passed through opaquely.
type Outline struct {
	Topic      string           `json:"topic"`
	Parameters json.RawMessage  `json:"parameters,omitempty"`
	Sections   []OutlineSection `json:"sections"`
}

// QueryResult is the complete output of the last executed query. A later
// data event replaces it whole; it is never merged.
type QueryResult struct {
	Data       []Row `json:"data"`
	RowCount   int   `json:"row_count"`
	TotalCount int   `json:"total_count,omitempty"`
	Truncated  bool  `json:"truncated,omitempty"`
}
