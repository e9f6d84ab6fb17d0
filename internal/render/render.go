// Package render turns finalized report views into HTML. Markdown segments
// go through goldmark with GFM tables enabled; chart segments are emitted as
// data islands for the external drawing surface, which owns all actual
// chart drawing.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/insightlab/reportstream/internal/assembly"
)

// Renderer converts view models to HTML fragments.
type Renderer struct {
	md goldmark.Markdown
}

func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
	}
}

// Report renders a complete report view as one HTML fragment.
func (r *Renderer) Report(view *assembly.ReportView) (string, error) {
	var b strings.Builder
	b.WriteString(`<article class="report">`)
	fmt.Fprintf(&b, `<h1>%s</h1>`, html.EscapeString(view.Title))

	if view.Summary != "" {
		summary, err := r.markdown(view.Summary)
		if err != nil {
			return "", fmt.Errorf("render summary: %w", err)
		}
		fmt.Fprintf(&b, `<div class="report-summary">%s</div>`, summary)
	}

	for _, sec := range view.Sections {
		if err := r.section(&b, sec); err != nil {
			return "", err
		}
	}
	b.WriteString(`</article>`)
	return b.String(), nil
}

func (r *Renderer) section(b *strings.Builder, sec assembly.SectionView) error {
	b.WriteString(`<section class="report-section">`)
	fmt.Fprintf(b, `<h2>%s</h2>`, html.EscapeString(sec.Name))

	for _, disc := range sec.Discoveries {
		b.WriteString(`<div class="discovery">`)
		if disc.Title != "" {
			fmt.Fprintf(b, `<h3>%s</h3>`, html.EscapeString(disc.Title))
		}
		for _, seg := range disc.Segments {
			if err := r.segment(b, seg); err != nil {
				return fmt.Errorf("render discovery %s: %w", disc.DiscoveryID, err)
			}
		}
		if disc.DataInterpretation != "" {
			interp, err := r.markdown(disc.DataInterpretation)
			if err != nil {
				return fmt.Errorf("render interpretation: %w", err)
			}
			fmt.Fprintf(b, `<div class="data-interpretation">%s</div>`, interp)
		}
		b.WriteString(`</div>`)
	}

	if sec.Conclusion != "" {
		conclusion, err := r.markdown(sec.Conclusion)
		if err != nil {
			return fmt.Errorf("render conclusion: %w", err)
		}
		fmt.Fprintf(b, `<div class="section-conclusion">%s</div>`, conclusion)
	}
	b.WriteString(`</section>`)
	return nil
}

func (r *Renderer) segment(b *strings.Builder, seg assembly.Segment) error {
	switch {
	case seg.ChartError != "":
		fmt.Fprintf(b, `<div class="chart-error" data-chart-id="%s">%s</div>`,
			html.EscapeString(seg.ChartID), html.EscapeString(seg.ChartError))
		return nil

	case seg.Chart != nil:
		payload, err := json.Marshal(seg.Chart)
		if err != nil {
			return fmt.Errorf("encode chart %s: %w", seg.Chart.ChartID, err)
		}
		fmt.Fprintf(b, `<script type="application/json" class="chart-data" data-chart-id="%s">%s</script>`,
			html.EscapeString(seg.Chart.ChartID), payload)
		return nil

	default:
		rendered, err := r.markdown(seg.Text)
		if err != nil {
			return err
		}
		b.WriteString(rendered)
		return nil
	}
}

func (r *Renderer) markdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}
