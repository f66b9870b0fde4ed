// Package assembler builds the exact payload sent to the analysis provider
// for a given request kind, applying the truncation policy that keeps
// bundles inside the provider's context window.
package assembler

import "strings"

// Segment is one labeled block of context text.
type Segment struct {
	Label string
	Text  string
}

// Bundle is the assembled input for one provider call: an ordered sequence
// of text segments plus the size budget it was built against. Bundles are
// owned by a single request and never persisted.
type Bundle struct {
	Segments []Segment
	Budget   int
}

// Add appends a segment. Empty text is skipped so bundle content stays a
// pure function of the available inputs.
func (b *Bundle) Add(label, text string) {
	if text == "" {
		return
	}
	b.Segments = append(b.Segments, Segment{Label: label, Text: text})
}

// Size is the total byte length of all segment text.
func (b *Bundle) Size() int {
	n := 0
	for _, s := range b.Segments {
		n += len(s.Text)
	}
	return n
}

// Render concatenates the segments deterministically. Identical bundles
// render to byte-identical strings, which cache-key stability depends on.
func (b *Bundle) Render() string {
	var sb strings.Builder
	for i, s := range b.Segments {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if s.Label != "" {
			sb.WriteString("### ")
			sb.WriteString(s.Label)
			sb.WriteString("\n")
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}
