package chart

import (
	"fmt"
	"math"
	"testing"

	"github.com/insightlab/reportstream/internal/report"
)

func barChart(rows []report.Row, sources ...report.DataSource) *report.Chart {
	return &report.Chart{
		ChartID:      "c1",
		ChartType:    report.ChartTypeBar,
		Title:        "test",
		DataSources:  sources,
		RenderedData: rows,
	}
}

func TestResolveDeclaredFields(t *testing.T) {
	c := barChart(
		[]report.Row{
			{"region": "north", "sales": 10.0, "cost": 4.0},
			{"region": "south", "sales": 20.0, "cost": 8.0},
		},
		report.DataSource{XAxis: "region", YAxis: []string{"sales"}},
	)
	got, err := NewResolver(Tuning{}).Resolve(c)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.XField != "region" {
		t.Errorf("x field = %q, want region", got.XField)
	}
	if len(got.YFields) != 1 || got.YFields[0] != "sales" {
		t.Errorf("y fields = %v, want [sales]", got.YFields)
	}
}

func TestResolveAutoDetectsFields(t *testing.T) {
	c := barChart([]report.Row{
		{"month": "2024-01", "value": 5.0},
		{"month": "2024-02", "value": 7.0},
	})
	got, err := NewResolver(Tuning{}).Resolve(c)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.XField != "month" {
		t.Errorf("x field = %q, want month", got.XField)
	}
	if len(got.YFields) != 1 || got.YFields[0] != "value" {
		t.Errorf("y fields = %v, want [value]", got.YFields)
	}
}

func TestResolveDropsMissingDeclaredField(t *testing.T) {
	c := barChart(
		[]report.Row{
			{"region": "north", "sales": 10.0},
			{"region": "south", "sales": 20.0},
		},
		report.DataSource{XAxis: "region", YAxis: []string{"revenue", "sales"}},
	)
	got, err := NewResolver(Tuning{}).Resolve(c)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got.YFields) != 1 || got.YFields[0] != "sales" {
		t.Errorf("y fields = %v, want [sales]", got.YFields)
	}
	if len(got.Diagnostics) == 0 {
		t.Error("expected a diagnostic for the dropped field")
	}
}

func TestResolveExcludesNullX(t *testing.T) {
	c := barChart([]report.Row{
		{"region": "north", "sales": 10.0},
		{"region": nil, "sales": 99.0},
		{"region": "south", "sales": 20.0},
	})
	got, err := NewResolver(Tuning{}).Resolve(c)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got.DisplayRows) != 2 {
		t.Errorf("rows = %d, want 2 (null x excluded)", len(got.DisplayRows))
	}
}

func TestResolveSortsDatesAsDates(t *testing.T) {
	c := &report.Chart{
		ChartID:   "c1",
		ChartType: report.ChartTypeLine,
		RenderedData: []report.Row{
			{"day": "2024-03-10", "v": 1.0},
			{"day": "2024-01-02", "v": 2.0},
			{"day": "2024-02-20", "v": 3.0},
		},
	}
	got, err := NewResolver(Tuning{}).Resolve(c)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"2024-01-02", "2024-02-20", "2024-03-10"}
	for i, w := range want {
		if got.DisplayRows[i]["day"] != w {
			t.Errorf("row %d day = %v, want %s", i, got.DisplayRows[i]["day"], w)
		}
	}
}

func TestResolveSortsNumericStringsNumerically(t *testing.T) {
	c := barChart([]report.Row{
		{"rank": "10", "v": 1.0},
		{"rank": "2", "v": 2.0},
		{"rank": "1", "v": 3.0},
	})
	got, err := NewResolver(Tuning{}).Resolve(c)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"1", "2", "10"}
	for i, w := range want {
		if got.DisplayRows[i]["rank"] != w {
			t.Errorf("row %d = %v, want %s", i, got.DisplayRows[i]["rank"], w)
		}
	}
}

func TestBarCapKeepsTopByFirstY(t *testing.T) {
	rows := make([]report.Row, 0, 1000)
	for i := 1; i <= 1000; i++ {
		rows = append(rows, report.Row{
			"cat": fmt.Sprintf("c%04d", i),
			"v":   float64(i),
		})
	}
	got, err := NewResolver(Tuning{BarCategoryCap: 20}).Resolve(barChart(rows))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got.DisplayRows) != 20 {
		t.Fatalf("rows = %d, want exactly 20", len(got.DisplayRows))
	}
	for _, row := range got.DisplayRows {
		if v, _ := row["v"].(float64); v < 981 {
			t.Errorf("row %v survived the cap but is not in the top 20", row)
		}
	}
}

func TestLineCapSamplesEvenly(t *testing.T) {
	rows := make([]report.Row, 0, 200)
	for i := 0; i < 200; i++ {
		rows = append(rows, report.Row{"t": float64(i), "v": float64(i * 2)})
	}
	c := &report.Chart{ChartID: "c1", ChartType: report.ChartTypeLine, RenderedData: rows}
	got, err := NewResolver(Tuning{LineSampleCap: 50}).Resolve(c)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got.DisplayRows) != 50 {
		t.Fatalf("rows = %d, want 50", len(got.DisplayRows))
	}
	if got.DisplayRows[0]["t"] != float64(0) {
		t.Errorf("first point = %v, want 0", got.DisplayRows[0]["t"])
	}
	if got.DisplayRows[49]["t"] != float64(199) {
		t.Errorf("last point = %v, want 199", got.DisplayRows[49]["t"])
	}
}

func TestPieRanksAndTruncates(t *testing.T) {
	rows := make([]report.Row, 0, 15)
	for i := 1; i <= 15; i++ {
		rows = append(rows, report.Row{"seg": fmt.Sprintf("s%d", i), "share": float64(i)})
	}
	c := &report.Chart{ChartID: "c1", ChartType: report.ChartTypePie, RenderedData: rows}
	got, err := NewResolver(Tuning{PieSliceCap: 10}).Resolve(c)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got.DisplayRows) != 10 {
		t.Fatalf("slices = %d, want 10", len(got.DisplayRows))
	}
	if got.DisplayRows[0]["seg"] != "s15" {
		t.Errorf("largest slice first, got %v", got.DisplayRows[0]["seg"])
	}
}

func TestPieRejectsSingleSlice(t *testing.T) {
	c := &report.Chart{
		ChartID:      "c1",
		ChartType:    report.ChartTypePie,
		RenderedData: []report.Row{{"seg": "only", "share": 100.0}},
	}
	if _, err := NewResolver(Tuning{}).Resolve(c); err == nil {
		t.Fatal("expected an insufficient-data error for a one-slice pie")
	}
}

func TestDualAxisIndependentScales(t *testing.T) {
	c := &report.Chart{
		ChartID:   "c1",
		ChartType: report.ChartTypeDualAxis,
		DataSources: []report.DataSource{
			{XAxis: "month", YAxis: []string{"revenue"}, Axis: report.AxisPrimary},
			{YAxis: []string{"rate"}, Axis: report.AxisSecondary},
		},
		RenderedData: []report.Row{
			{"month": "2024-01", "revenue": 5000.0, "rate": 0.4},
			{"month": "2024-02", "revenue": 8000.0, "rate": 0.7},
		},
	}
	got, err := NewResolver(Tuning{}).Resolve(c)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Secondary == nil {
		t.Fatal("secondary scale missing")
	}
	if got.DomainMax < 8000 {
		t.Errorf("primary domain = %v, want >= 8000", got.DomainMax)
	}
	if got.Secondary.DomainMax > 10 {
		t.Errorf("secondary domain = %v, should scale to the rate series", got.Secondary.DomainMax)
	}
}

func TestDualAxisFallsBackToBar(t *testing.T) {
	c := &report.Chart{
		ChartID:   "c1",
		ChartType: report.ChartTypeDualAxis,
		DataSources: []report.DataSource{
			{XAxis: "month", YAxis: []string{"revenue"}},
		},
		RenderedData: []report.Row{
			{"month": "2024-01", "revenue": 5000.0},
			{"month": "2024-02", "revenue": 8000.0},
		},
	}
	got, err := NewResolver(Tuning{}).Resolve(c)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !got.BarFallback {
		t.Error("expected bar fallback with one axis group")
	}
	if got.ChartType != report.ChartTypeBar {
		t.Errorf("chart type = %q, want bar", got.ChartType)
	}
}

func TestDomainZeroAnchoredWithHeadroom(t *testing.T) {
	c := barChart([]report.Row{
		{"cat": "a", "v": 200.0},
		{"cat": "b", "v": 150.0},
	})
	got, err := NewResolver(Tuning{AxisHeadroom: 1.1}).Resolve(c)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if math.Abs(got.DomainMax-220) > 1e-9 {
		t.Errorf("domain max = %v, want 220", got.DomainMax)
	}
	if got.Ticks[0] != 0 {
		t.Errorf("first tick = %v, want 0", got.Ticks[0])
	}
}

func TestDomainDefaultsWhenAllZero(t *testing.T) {
	c := barChart([]report.Row{
		{"cat": "a", "v": 0.0},
		{"cat": "b", "v": 0.0},
	})
	got, err := NewResolver(Tuning{}).Resolve(c)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.DomainMax != 100 {
		t.Errorf("domain max = %v, want 100", got.DomainMax)
	}
}

func TestTicksAreNice(t *testing.T) {
	ticks := Ticks(0, 93, 5)
	if len(ticks) != 5 {
		t.Fatalf("tick count = %d, want 5", len(ticks))
	}
	step := ticks[1] - ticks[0]
	if step != 20 && step != 25 {
		t.Errorf("step = %v, want 20 or 25 (never 18.6)", step)
	}
	for i, tk := range ticks {
		if math.Abs(tk-step*float64(i)) > 1e-9 {
			t.Errorf("tick %d = %v, not a multiple of %v", i, tk, step)
		}
	}
}

func TestTicksMagnitudes(t *testing.T) {
	cases := []struct {
		max  float64
		want float64
	}{
		{0.8, 0.2},
		{9, 2},
		{400, 100},
		{12000, 2000},
	}
	for _, tc := range cases {
		ticks := Ticks(0, tc.max, 5)
		if step := ticks[1] - ticks[0]; math.Abs(step-tc.want) > 1e-9 {
			t.Errorf("Ticks(0, %v, 5) step = %v, want %v", tc.max, step, tc.want)
		}
	}
}

func TestResolveEmptyDataErrors(t *testing.T) {
	if _, err := NewResolver(Tuning{}).Resolve(&report.Chart{ChartID: "c1", ChartType: "bar"}); err == nil {
		t.Fatal("expected an error for a chart with no rows")
	}
}

func TestResolveUnknownTypeErrors(t *testing.T) {
	c := &report.Chart{
		ChartID:      "c1",
		ChartType:    "sankey",
		RenderedData: []report.Row{{"a": "x", "v": 1.0}},
	}
	if _, err := NewResolver(Tuning{}).Resolve(c); err == nil {
		t.Fatal("expected an error for an unsupported chart type")
	}
}
