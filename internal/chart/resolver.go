// Package chart turns the loosely-specified chart configs emitted by the
// upstream chart agent into fully resolved view models: concrete field
// bindings, sorted and capped rows, and nice axis scales. Resolution is pure
// and per-chart; a failure here is recorded on the chart, never propagated
// as a stream failure.
package chart

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/insightlab/reportstream/internal/report"
)

// Tuning bounds the rendered output. Values come from config; zero fields
// fall back to the defaults.
type Tuning struct {
	BarCategoryCap int     `yaml:"bar_category_cap"`
	LineSampleCap  int     `yaml:"line_sample_cap"`
	PieSliceCap    int     `yaml:"pie_slice_cap"`
	AxisHeadroom   float64 `yaml:"axis_headroom"`
	TickCount      int     `yaml:"tick_count"`
}

// DefaultTuning returns the caps used when no override is configured.
func DefaultTuning() Tuning {
	return Tuning{
		BarCategoryCap: 20,
		LineSampleCap:  50,
		PieSliceCap:    10,
		AxisHeadroom:   1.1,
		TickCount:      5,
	}
}

func (t Tuning) withDefaults() Tuning {
	d := DefaultTuning()
	if t.BarCategoryCap <= 0 {
		t.BarCategoryCap = d.BarCategoryCap
	}
	if t.LineSampleCap <= 0 {
		t.LineSampleCap = d.LineSampleCap
	}
	if t.PieSliceCap <= 0 {
		t.PieSliceCap = d.PieSliceCap
	}
	if t.AxisHeadroom <= 1 {
		t.AxisHeadroom = d.AxisHeadroom
	}
	if t.TickCount < 2 {
		t.TickCount = d.TickCount
	}
	return t
}

// Scale is one y-axis domain with precomputed tick positions.
type Scale struct {
	DomainMax float64   `json:"domain_max"`
	Ticks     []float64 `json:"ticks"`
}

// Resolved is the renderer-ready form of a chart. DisplayRows are sorted and
// capped; fields are guaranteed present in every row's schema.
type Resolved struct {
	ChartID   string `json:"chart_id"`
	ChartType string `json:"chart_type"`
	Title     string `json:"title"`

	XField  string   `json:"x_field"`
	YFields []string `json:"y_fields"`

	DisplayRows []report.Row `json:"display_rows"`

	DomainMax float64   `json:"domain_max"`
	Ticks     []float64 `json:"ticks"`

	// Dual-axis only: the secondary series and their independent scale.
	SecondaryFields []string `json:"secondary_y_fields,omitempty"`
	Secondary       *Scale   `json:"secondary_scale,omitempty"`

	// Set when a dual-axis chart could not resolve two axis groups and was
	// demoted to a single-axis bar layout.
	BarFallback bool `json:"bar_fallback,omitempty"`

	// Non-fatal notes: dropped fields, truncation, demotion.
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// Resolver applies one Tuning to every chart of a report.
type Resolver struct {
	tuning Tuning
}

func NewResolver(tuning Tuning) *Resolver {
	return &Resolver{tuning: tuning.withDefaults()}
}

// Resolve binds fields, sorts, caps and scales one chart. The returned error
// is a per-chart condition for the caller to record on Chart.Error.
func (r *Resolver) Resolve(c *report.Chart) (*Resolved, error) {
	if c == nil {
		return nil, fmt.Errorf("nil chart")
	}
	if len(c.RenderedData) == 0 {
		return nil, fmt.Errorf("chart %s: no rows to render", c.ChartID)
	}

	res := &Resolved{
		ChartID:   c.ChartID,
		ChartType: c.ChartType,
		Title:     c.Title,
	}

	schema := c.RenderedData[0]
	xField, primary, secondary := r.bindFields(c, schema, res)
	if xField == "" {
		return nil, fmt.Errorf("chart %s: no usable x field", c.ChartID)
	}
	if len(primary) == 0 && len(secondary) == 0 {
		return nil, fmt.Errorf("chart %s: no usable y fields", c.ChartID)
	}
	// Only dual-axis charts distinguish a secondary group; everywhere else
	// the axis tag is just metadata and the series share one scale.
	if c.ChartType != report.ChartTypeDualAxis {
		primary = append(primary, secondary...)
		secondary = nil
	}
	res.XField = xField
	res.YFields = primary

	// Rows without an x value have no defined position.
	rows := make([]report.Row, 0, len(c.RenderedData))
	for _, row := range c.RenderedData {
		if v, ok := row[xField]; ok && v != nil && fmt.Sprint(v) != "" {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("chart %s: every row has a null %s", c.ChartID, xField)
	}
	sortByX(rows, xField)

	allY := append(append([]string{}, primary...), secondary...)

	switch c.ChartType {
	case report.ChartTypePie:
		return r.resolvePie(res, rows, primary[0])

	case report.ChartTypeBar:
		rows = r.capBar(res, rows, primary[0])

	case report.ChartTypeLine:
		rows = r.capLine(res, rows)

	case report.ChartTypeDualAxis:
		if len(primary) == 0 || len(secondary) == 0 {
			res.BarFallback = true
			res.ChartType = report.ChartTypeBar
			res.YFields = allY
			res.Diagnostics = append(res.Diagnostics,
				"dual-axis needs a primary and a secondary series, demoted to bar")
			rows = r.capBar(res, rows, allY[0])
			secondary = nil
		}

	case report.ChartTypeHeatmap:
		// All rows render; a heatmap degrades gracefully at density.

	default:
		return nil, fmt.Errorf("chart %s: unsupported chart type %q", c.ChartID, c.ChartType)
	}

	res.DisplayRows = rows

	if len(secondary) > 0 {
		res.SecondaryFields = secondary
		res.DomainMax, res.Ticks = r.scale(rows, primary)
		max, ticks := r.scale(rows, secondary)
		res.Secondary = &Scale{DomainMax: max, Ticks: ticks}
	} else {
		res.DomainMax, res.Ticks = r.scale(rows, allY)
	}

	return res, nil
}

// bindFields resolves the x and y field names: declared data_sources first,
// auto-detection from the row schema for any gap. Declared fields missing
// from the schema are dropped with a diagnostic.
func (r *Resolver) bindFields(c *report.Chart, schema report.Row, res *Resolved) (x string, primary, secondary []string) {
	seen := map[string]bool{}

	for _, src := range c.DataSources {
		if src.XAxis != "" {
			if _, ok := schema[src.XAxis]; !ok {
				res.Diagnostics = append(res.Diagnostics,
					fmt.Sprintf("declared x field %q not in data, auto-detecting", src.XAxis))
			} else if x == "" {
				x = src.XAxis
			}
		}
		for _, y := range src.YAxis {
			if y == "" || seen[y] {
				continue
			}
			if _, ok := schema[y]; !ok {
				res.Diagnostics = append(res.Diagnostics,
					fmt.Sprintf("declared y field %q not in data, dropped", y))
				continue
			}
			seen[y] = true
			if src.Axis == report.AxisSecondary {
				secondary = append(secondary, y)
			} else {
				primary = append(primary, y)
			}
		}
	}

	// Deterministic iteration for auto-detection.
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if x == "" {
		for _, k := range keys {
			if _, isNum := toFloat(schema[k]); !isNum {
				x = k
				break
			}
		}
		// All-numeric schema: first column serves as x.
		if x == "" && len(keys) > 0 {
			x = keys[0]
		}
	}
	if len(primary) == 0 && len(secondary) == 0 {
		for _, k := range keys {
			if k == x {
				continue
			}
			if _, isNum := toFloat(schema[k]); isNum {
				primary = append(primary, k)
			}
		}
	}
	return x, primary, secondary
}

// capBar keeps the top-N categories by the first y value.
func (r *Resolver) capBar(res *Resolved, rows []report.Row, yField string) []report.Row {
	if len(rows) <= r.tuning.BarCategoryCap {
		return rows
	}
	ranked := make([]report.Row, len(rows))
	copy(ranked, rows)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, _ := toFloat(ranked[i][yField])
		b, _ := toFloat(ranked[j][yField])
		return a > b
	})
	ranked = ranked[:r.tuning.BarCategoryCap]

	// Restore x order among the survivors so the axis still reads naturally.
	kept := make(map[string]int, len(ranked))
	for _, row := range ranked {
		kept[fmt.Sprint(row[res.XField])]++
	}
	out := make([]report.Row, 0, r.tuning.BarCategoryCap)
	for _, row := range rows {
		key := fmt.Sprint(row[res.XField])
		if kept[key] > 0 {
			kept[key]--
			out = append(out, row)
		}
	}
	res.Diagnostics = append(res.Diagnostics,
		fmt.Sprintf("kept top %d of %d categories", r.tuning.BarCategoryCap, len(rows)))
	return out
}

// capLine takes an evenly spaced sample preserving order and endpoints. Trend
// shape matters more than peaks for lines, so this is positional, not
// value-ranked.
func (r *Resolver) capLine(res *Resolved, rows []report.Row) []report.Row {
	limit := r.tuning.LineSampleCap
	n := len(rows)
	if n <= limit {
		return rows
	}
	out := make([]report.Row, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, rows[i*(n-1)/(limit-1)])
	}
	res.Diagnostics = append(res.Diagnostics,
		fmt.Sprintf("sampled %d of %d points", limit, n))
	return out
}

// resolvePie ranks slices by value and truncates. A one-slice pie is an
// insufficient-data condition, not a renderable chart.
func (r *Resolver) resolvePie(res *Resolved, rows []report.Row, yField string) (*Resolved, error) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := toFloat(rows[i][yField])
		b, _ := toFloat(rows[j][yField])
		return a > b
	})
	if len(rows) > r.tuning.PieSliceCap {
		res.Diagnostics = append(res.Diagnostics,
			fmt.Sprintf("kept top %d of %d slices", r.tuning.PieSliceCap, len(rows)))
		rows = rows[:r.tuning.PieSliceCap]
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("chart %s: insufficient data, a pie needs at least 2 slices", res.ChartID)
	}
	res.DisplayRows = rows
	res.DomainMax, res.Ticks = r.scale(rows, []string{yField})
	return res, nil
}

// scale computes a zero-anchored domain over the given y fields with nice
// tick positions.
func (r *Resolver) scale(rows []report.Row, yFields []string) (float64, []float64) {
	max := 0.0
	for _, row := range rows {
		for _, f := range yFields {
			if v, ok := toFloat(row[f]); ok && math.Abs(v) > max {
				max = math.Abs(v)
			}
		}
	}
	if max == 0 {
		max = 100
	} else {
		max *= r.tuning.AxisHeadroom
	}
	return max, Ticks(0, max, r.tuning.TickCount)
}

// Ticks returns count tick positions from min at multiples of a nice step.
// The step is range/(count-1) rounded to the nearest of {1,2,5}x10^k, so axis
// labels stay readable at any magnitude.
func Ticks(min, max float64, count int) []float64 {
	if count < 2 || max <= min {
		return []float64{min}
	}
	step := niceStep((max - min) / float64(count-1))
	ticks := make([]float64, count)
	for i := range ticks {
		ticks[i] = min + step*float64(i)
	}
	return ticks
}

func niceStep(raw float64) float64 {
	if raw <= 0 {
		return 1
	}
	exp := math.Floor(math.Log10(raw))
	pow := math.Pow(10, exp)
	base := raw / pow
	var nice float64
	switch {
	case base < 1.5:
		nice = 1
	case base < 3.5:
		nice = 2
	case base < 7.5:
		nice = 5
	default:
		nice = 10
	}
	return nice * pow
}

// sortByX orders rows by a type-sniffed comparison of the x values: dates
// beat numbers beat lexicographic.
func sortByX(rows []report.Row, xField string) {
	allDates, allNums := true, true
	for _, row := range rows {
		v := row[xField]
		if _, ok := toTime(v); !ok {
			allDates = false
		}
		if _, ok := toFloat(v); !ok {
			allNums = false
		}
		if !allDates && !allNums {
			break
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i][xField], rows[j][xField]
		switch {
		case allDates:
			ta, _ := toTime(a)
			tb, _ := toTime(b)
			return ta.Before(tb)
		case allNums:
			fa, _ := toFloat(a)
			fb, _ := toFloat(b)
			return fa < fb
		default:
			return fmt.Sprint(a) < fmt.Sprint(b)
		}
	})
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"2006-01",
}

func toTime(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
