// Package markdown normalizes model-generated markdown before it is handed to
// a renderer. Upstream models frequently emit raw HTML, live links, and tables
// whose rows are split mid-cell across lines. Two passes run in a fixed order:
// Sanitize strips markup that must never reach the HTML renderer, then
// FixTables reconstructs broken table rows so downstream table detection
// succeeds.
//
// The repair is heuristic by design. A known accepted limitation: cells that
// contain a literal "|" (code, paths) can still be misparsed; no attempt is
// made to guess stricter escaping rules.
package markdown

import (
	"regexp"
	"strings"
)

var (
	// Anchor tags, including unterminated opening tags. An unterminated
	// "<a href=..." would otherwise turn all following text into a link.
	anchorOpenRe     = regexp.MustCompile(`(?i)<a\b[^>]*>`)
	anchorCloseRe    = regexp.MustCompile(`(?i)</a\s*>`)
	anchorDanglingRe = regexp.MustCompile(`(?i)<a\b[^>\n]*`)

	// Fixed set of inline/structural tags stripped while keeping inner text.
	htmlTagRe = regexp.MustCompile(`(?i)</?(?:div|span|p|br|hr|b|i|u|strong|em|ul|ol|li|h[1-6]|img|font|center|table|thead|tbody|tr|td|th)\b[^>]*>`)

	// Markdown links: keep the link text, drop the target.
	markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)

	// Bare URLs.
	bareURLRe = regexp.MustCompile(`https?://[^\s<>()\[\]]+`)

	// HTML entities, named or numeric.
	htmlEntityRe = regexp.MustCompile(`&(?:[a-zA-Z]{2,8}|#\d{1,6});`)

	// Runs of blank lines.
	blankRunRe = regexp.MustCompile(`\n{3,}`)

	// Header separator row of a markdown table, e.g. "|---|:---:|".
	separatorRowRe = regexp.MustCompile(`^\s*\|(?:\s*:?-{2,}:?\s*\|)+\s*$`)
)

// Repair runs both normalization passes in their required order.
func Repair(text string) string {
	return FixTables(Sanitize(text))
}

// Sanitize removes markup that must not reach the HTML renderer: anchors
// (terminated or not), a fixed tag set, markdown links (keeping the text),
// bare URLs, and HTML entities. Runs of blank lines collapse to one.
func Sanitize(text string) string {
	if text == "" {
		return text
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")

	// Markdown links first so their URLs go with them.
	text = markdownLinkRe.ReplaceAllString(text, "$1")

	text = anchorOpenRe.ReplaceAllString(text, "")
	text = anchorCloseRe.ReplaceAllString(text, "")
	text = anchorDanglingRe.ReplaceAllString(text, "")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = bareURLRe.ReplaceAllString(text, "")
	text = htmlEntityRe.ReplaceAllString(text, "")

	// Removals above can leave trailing spaces that confuse the table pass.
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")

	text = blankRunRe.ReplaceAllString(text, "\n\n")

	return text
}

// FixTables reconstructs markdown tables whose rows were split across lines.
// The expected column count comes from the header separator row; row lines
// are merged until their pipe count matches it. A blank line is forced
// between prose and table blocks so line-anchored table detection works.
func FixTables(text string) string {
	if !strings.Contains(text, "|") {
		return text
	}

	lines := strings.Split(text, "\n")

	// One scan to find the header separator and the expected pipe count.
	expectedPipes := 0
	for _, line := range lines {
		if separatorRowRe.MatchString(line) {
			expectedPipes = strings.Count(line, "|")
			break
		}
	}

	merged := mergeBrokenRows(lines, expectedPipes)
	return strings.Join(insertTableSpacing(merged), "\n")
}

// mergeBrokenRows rejoins rows the model split mid-cell.
func mergeBrokenRows(lines []string, expectedPipes int) []string {
	if expectedPipes == 0 {
		return lines
	}

	var out []string
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if separatorRowRe.MatchString(line) {
			out = append(out, strings.TrimRight(line, " "))
			continue
		}

		if isRowLine(line) {
			row := strings.TrimRight(line, " ")
			// Incomplete row: absorb following lines until the pipe count
			// matches the header, a separator appears, or input runs out.
			for strings.Count(row, "|") < expectedPipes || !strings.HasSuffix(row, "|") {
				if i+1 >= len(lines) {
					break
				}
				next := lines[i+1]
				if separatorRowRe.MatchString(next) || strings.TrimSpace(next) == "" {
					break
				}
				row = joinRowParts(row, next)
				i++
			}
			out = append(out, row)
			continue
		}

		// Prose that runs straight into an orphaned single-cell fragment.
		trimmed := strings.TrimRight(line, " ")
		if trimmed != "" && !strings.HasSuffix(trimmed, "|") &&
			i+1 < len(lines) && isLoneCellFragment(lines[i+1]) {
			out = append(out, joinRowParts(trimmed, lines[i+1]))
			i++
			continue
		}

		out = append(out, line)
	}
	return out
}

// insertTableSpacing forces a blank line between prose and table blocks in
// both directions, so regex-based table detection anchored at line starts
// succeeds.
func insertTableSpacing(lines []string) []string {
	var out []string
	for _, line := range lines {
		if len(out) > 0 {
			prev := out[len(out)-1]
			switch {
			case isRowLine(line) && endsWithSentencePunct(prev):
				out = append(out, "")
			case !isRowLine(line) && strings.TrimSpace(line) != "" &&
				(isRowLine(prev) || separatorRowRe.MatchString(prev)):
				out = append(out, "")
			}
		}
		out = append(out, line)
	}
	return out
}

// isRowLine reports whether the line opens a table row.
func isRowLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "|") && !separatorRowRe.MatchString(line)
}

// isLoneCellFragment matches a single orphaned cell like "| text |".
func isLoneCellFragment(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "|") &&
		strings.HasSuffix(trimmed, "|") &&
		strings.Count(trimmed, "|") == 2
}

// joinRowParts concatenates two parts of a broken row, reconciling the pipe
// at the junction so "| x |" + "| y |" becomes "| x | y |".
func joinRowParts(head, tail string) string {
	head = strings.TrimRight(head, " ")
	tail = strings.TrimSpace(tail)

	if strings.HasSuffix(head, "|") && strings.HasPrefix(tail, "|") {
		tail = strings.TrimPrefix(tail, "|")
		tail = strings.TrimLeft(tail, " ")
	}
	if tail == "" {
		return head
	}
	return head + " " + tail
}

// endsWithSentencePunct reports whether prose ends a sentence, in either
// ASCII or fullwidth punctuation.
func endsWithSentencePunct(line string) bool {
	trimmed := strings.TrimRight(line, " ")
	if trimmed == "" {
		return false
	}
	for _, suffix := range []string{".", "!", "?", ":", "。", "！", "？", "："} {
		if strings.HasSuffix(trimmed, suffix) {
			return true
		}
	}
	return false
}
