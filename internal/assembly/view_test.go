package assembly

import (
	"strings"
	"testing"

	"github.com/insightlab/reportstream/internal/chart"
	"github.com/insightlab/reportstream/internal/event"
	"github.com/insightlab/reportstream/internal/report"
)

func newFinalizer() *Finalizer {
	return NewFinalizer(chart.NewResolver(chart.DefaultTuning()), nil)
}

func lineChart(id string) report.Chart {
	return report.Chart{
		ChartID:   id,
		ChartType: report.ChartTypeLine,
		Title:     "chart " + id,
		RenderedData: []report.Row{
			{"m": 1.0, "v": 10.0},
			{"m": 2.0, "v": 20.0},
		},
	}
}

func TestFinalizeSubstitutesPlaceholder(t *testing.T) {
	r := &report.Report{
		ReportID: "r1",
		Title:    "T",
		Sections: []report.Section{{
			Name: "A",
			Discoveries: []report.Discovery{{
				Insight: "Intro text.\n{{CHART:c1}}\nClosing text.",
				Charts:  []report.Chart{lineChart("c1")},
			}},
		}},
	}
	view := newFinalizer().Finalize(r)

	segs := view.Sections[0].Discoveries[0].Segments
	if len(segs) != 3 {
		t.Fatalf("segments = %d, want text/chart/text", len(segs))
	}
	if !strings.Contains(segs[0].Text, "Intro") {
		t.Errorf("segment 0 = %+v", segs[0])
	}
	if segs[1].Chart == nil || segs[1].Chart.ChartID != "c1" {
		t.Fatalf("segment 1 is not the resolved chart: %+v", segs[1])
	}
	if !strings.Contains(segs[2].Text, "Closing") {
		t.Errorf("segment 2 = %+v", segs[2])
	}
}

func TestFinalizeSubstitutionIsSinglePass(t *testing.T) {
	// A chart whose title contains the placeholder text must not trigger a
	// second substitution round.
	c := lineChart("c1")
	c.Title = "see {{CHART:c1}} here"
	r := &report.Report{
		Sections: []report.Section{{
			Discoveries: []report.Discovery{{
				Insight: "{{CHART:c1}}",
				Charts:  []report.Chart{c},
			}},
		}},
	}
	segs := newFinalizer().Finalize(r).Sections[0].Discoveries[0].Segments
	if len(segs) != 1 {
		t.Fatalf("segments = %d, want 1", len(segs))
	}
	if segs[0].Chart == nil || segs[0].Chart.Title != "see {{CHART:c1}} here" {
		t.Errorf("chart title must pass through untouched: %+v", segs[0])
	}
}

func TestFinalizeMatchesEscapedPlaceholder(t *testing.T) {
	r := &report.Report{
		Sections: []report.Section{{
			Discoveries: []report.Discovery{{
				Insight: `before \{\{CHART:c1\}\} after`,
				Charts:  []report.Chart{lineChart("c1")},
			}},
		}},
	}
	segs := newFinalizer().Finalize(r).Sections[0].Discoveries[0].Segments
	found := false
	for _, seg := range segs {
		if seg.Chart != nil && seg.Chart.ChartID == "c1" {
			found = true
		}
		if strings.Contains(seg.Text, "CHART:") {
			t.Errorf("escaped placeholder left in text: %q", seg.Text)
		}
	}
	if !found {
		t.Error("escaped placeholder did not resolve to its chart")
	}
}

func TestFinalizeAppendsUnreferencedCharts(t *testing.T) {
	r := &report.Report{
		Sections: []report.Section{{
			Discoveries: []report.Discovery{{
				Insight: "No placeholders here.",
				Charts:  []report.Chart{lineChart("c1"), lineChart("c2")},
			}},
		}},
	}
	segs := newFinalizer().Finalize(r).Sections[0].Discoveries[0].Segments
	if len(segs) != 3 {
		t.Fatalf("segments = %d, want text plus two appended charts", len(segs))
	}
	if segs[1].Chart == nil || segs[1].Chart.ChartID != "c1" {
		t.Errorf("segment 1 = %+v", segs[1])
	}
	if segs[2].Chart == nil || segs[2].Chart.ChartID != "c2" {
		t.Errorf("segment 2 = %+v", segs[2])
	}
}

func TestFinalizeRecordsChartErrorsWithoutAborting(t *testing.T) {
	broken := report.Chart{ChartID: "c1", ChartType: "bar"} // no rows
	r := &report.Report{
		Sections: []report.Section{{
			Discoveries: []report.Discovery{{
				Insight: "{{CHART:c1}} and {{CHART:c2}}",
				Charts:  []report.Chart{broken, lineChart("c2")},
			}},
		}},
	}
	segs := newFinalizer().Finalize(r).Sections[0].Discoveries[0].Segments

	var gotError, gotChart bool
	for _, seg := range segs {
		if seg.ChartError != "" && seg.ChartID == "c1" {
			gotError = true
		}
		if seg.Chart != nil && seg.Chart.ChartID == "c2" {
			gotChart = true
		}
	}
	if !gotError {
		t.Error("broken chart must surface as a visible per-chart error")
	}
	if !gotChart {
		t.Error("one broken chart must not abort the others")
	}
}

func TestFinalizeMissingChartReference(t *testing.T) {
	r := &report.Report{
		Sections: []report.Section{{
			Discoveries: []report.Discovery{{
				Insight: "{{CHART:ghost}}",
			}},
		}},
	}
	segs := newFinalizer().Finalize(r).Sections[0].Discoveries[0].Segments
	if len(segs) != 1 || segs[0].ChartError == "" {
		t.Errorf("dangling reference must become an error segment: %+v", segs)
	}
}

// Full report-path scenario: events in, finalized view out.
func TestReportPathEndToEnd(t *testing.T) {
	s := NewSession()
	s.Begin("quarterly report")
	a := NewAssembler(s, Observers{}, nil)

	events := []*event.Event{
		{Type: event.TypeIntent, Intent: event.IntentReport},
		{Type: event.TypeReportCreated, ReportID: "r1"},
		{Type: event.TypeOutline, Outline: &report.Outline{
			Topic: "q3",
			Sections: []report.OutlineSection{
				{SectionID: "s1", Title: "A"},
				{SectionID: "s2", Title: "B"},
			},
		}},
		{Type: event.TypeSectionComplete, Index: 0, Section: &report.Section{SectionID: "s1", Name: "A"}},
		{Type: event.TypeSectionComplete, Index: 1, Section: &report.Section{SectionID: "s2", Name: "B"}},
		{Type: event.TypeComplete, Report: &report.Report{
			ReportID: "r1",
			Title:    "T",
			Sections: []report.Section{{
				Name: "A",
				Discoveries: []report.Discovery{{
					Insight: "{{CHART:c1}}",
					Charts: []report.Chart{{
						ChartID:   "c1",
						ChartType: report.ChartTypeLine,
						RenderedData: []report.Row{
							{"m": 1.0, "v": 10.0},
							{"m": 2.0, "v": 20.0},
						},
					}},
				}},
			}},
		}},
	}
	for _, ev := range events {
		a.Apply(ev)
	}

	d := a.Draft()
	if d.State != StateCompleted {
		t.Fatalf("state = %s", d.State)
	}
	if d.ReportID != "r1" || d.Report == nil {
		t.Fatalf("draft report missing: %+v", d)
	}

	view := newFinalizer().Finalize(d.Report)
	if view.Sections[0].Name != "A" {
		t.Fatalf("section = %+v", view.Sections[0])
	}
	segs := view.Sections[0].Discoveries[0].Segments
	if len(segs) != 1 || segs[0].Chart == nil {
		t.Fatalf("placeholder not replaced by the chart: %+v", segs)
	}
	c := segs[0].Chart
	if c.XField != "m" {
		t.Errorf("x field = %q, want m", c.XField)
	}
	if len(c.YFields) != 1 || c.YFields[0] != "v" {
		t.Errorf("y fields = %v, want [v]", c.YFields)
	}
	if c.DomainMax < 20*1.1-1e-9 {
		t.Errorf("domain max = %v, want >= 22", c.DomainMax)
	}
}
