package assembly

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/insightlab/reportstream/internal/chart"
	"github.com/insightlab/reportstream/internal/markdown"
	"github.com/insightlab/reportstream/internal/report"
)

// chartTokenRe matches {{CHART:<id>}} and its backslash-escaped form, which
// upstream models sometimes emit after markdown escaping.
var chartTokenRe = regexp.MustCompile(`\\?\{\\?\{CHART:([^{}\\]+)\\?\}\\?\}`)

// Segment is one ordered piece of a rendered discovery: either markdown
// text, a resolved chart, or a visible per-chart error.
type Segment struct {
	Text       string          `json:"text,omitempty"`
	Chart      *chart.Resolved `json:"chart,omitempty"`
	ChartID    string          `json:"chart_id,omitempty"`
	ChartError string          `json:"chart_error,omitempty"`
}

// DiscoveryView is a finalized discovery: repaired markdown split around its
// chart placeholders.
type DiscoveryView struct {
	DiscoveryID        string    `json:"discovery_id"`
	Title              string    `json:"title"`
	Segments           []Segment `json:"segments"`
	DataInterpretation string    `json:"data_interpretation,omitempty"`
}

type SectionView struct {
	SectionID    string          `json:"section_id"`
	Name         string          `json:"name"`
	AnalysisGoal string          `json:"analysis_goal,omitempty"`
	Discoveries  []DiscoveryView `json:"discoveries"`
	Conclusion   string          `json:"conclusion,omitempty"`
}

// ReportView is the immutable renderer input for one finalized report.
type ReportView struct {
	ReportID  string        `json:"report_id"`
	Title     string        `json:"title"`
	Summary   string        `json:"summary,omitempty"`
	CreatedAt string        `json:"created_at,omitempty"`
	Sections  []SectionView `json:"sections"`
}

// Finalizer turns a completed Report into a ReportView: markdown repaired,
// placeholders substituted, charts resolved. Chart failures are recorded on
// their segment and never abort the report.
type Finalizer struct {
	resolver *chart.Resolver
	log      *slog.Logger
}

func NewFinalizer(resolver *chart.Resolver, log *slog.Logger) *Finalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Finalizer{resolver: resolver, log: log}
}

// Finalize builds the view for a completed report.
func (f *Finalizer) Finalize(r *report.Report) *ReportView {
	view := &ReportView{
		ReportID:  r.ReportID,
		Title:     r.Title,
		Summary:   markdown.Repair(r.Summary),
		CreatedAt: r.CreatedAt,
		Sections:  make([]SectionView, 0, len(r.Sections)),
	}
	for _, sec := range r.Sections {
		sv := SectionView{
			SectionID:    sec.SectionID,
			Name:         sec.Name,
			AnalysisGoal: sec.AnalysisGoal,
			Conclusion:   markdown.Repair(sec.Conclusion),
			Discoveries:  make([]DiscoveryView, 0, len(sec.Discoveries)),
		}
		for _, disc := range sec.Discoveries {
			sv.Discoveries = append(sv.Discoveries, f.finalizeDiscovery(disc))
		}
		view.Sections = append(view.Sections, sv)
	}
	return view
}

// finalizeDiscovery splits the repaired insight around chart placeholders in
// a single left-to-right pass. Substituting in one pass means a chart title
// that itself contains placeholder text can never be re-substituted. Charts
// that no placeholder references are appended after the text, never dropped.
func (f *Finalizer) finalizeDiscovery(disc report.Discovery) DiscoveryView {
	dv := DiscoveryView{
		DiscoveryID:        disc.DiscoveryID,
		Title:              disc.Title,
		DataInterpretation: disc.DataInterpretation,
	}

	charts := make(map[string]*report.Chart, len(disc.Charts))
	for i := range disc.Charts {
		charts[disc.Charts[i].ChartID] = &disc.Charts[i]
	}
	used := make(map[string]bool, len(disc.Charts))

	insight := markdown.Repair(disc.Insight)
	last := 0
	for _, m := range chartTokenRe.FindAllStringSubmatchIndex(insight, -1) {
		if text := insight[last:m[0]]; text != "" {
			dv.Segments = append(dv.Segments, Segment{Text: text})
		}
		last = m[1]

		id := insight[m[2]:m[3]]
		c, ok := charts[id]
		if !ok {
			dv.Segments = append(dv.Segments, Segment{
				ChartID:    id,
				ChartError: fmt.Sprintf("chart %s referenced but not provided", id),
			})
			continue
		}
		used[id] = true
		dv.Segments = append(dv.Segments, f.chartSegment(c))
	}
	if text := insight[last:]; text != "" {
		dv.Segments = append(dv.Segments, Segment{Text: text})
	}

	// Unreferenced charts still render, after the narrative.
	for i := range disc.Charts {
		if c := &disc.Charts[i]; !used[c.ChartID] {
			dv.Segments = append(dv.Segments, f.chartSegment(c))
		}
	}
	return dv
}

func (f *Finalizer) chartSegment(c *report.Chart) Segment {
	if c.Error != "" {
		return Segment{ChartID: c.ChartID, ChartError: c.Error}
	}
	resolved, err := f.resolver.Resolve(c)
	if err != nil {
		f.log.Warn("chart resolution failed", "chart_id", c.ChartID, "error", err)
		return Segment{ChartID: c.ChartID, ChartError: err.Error()}
	}
	return Segment{ChartID: c.ChartID, Chart: resolved}
}
