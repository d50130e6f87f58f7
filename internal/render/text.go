package render

import (
	"fmt"

	"replay/crumbs/internal/summarizer"
)

// Text renders segments as plain lines. Summary rows follow their summary,
// indented by two spaces. Links without a destination produce no line.
func Text(segments []summarizer.Segment) []string {
	lines := make([]string, 0, len(segments))

	for _, segment := range segments {
		switch s := segment.(type) {
		case summarizer.LinkSegment:
			if s.Visible() {
				lines = append(lines, s.Path)
			}
		case summarizer.SummarySegment:
			lines = append(lines, s.Label())
			for _, row := range s.Rows() {
				if row.OffsetLabel != "" {
					lines = append(lines, fmt.Sprintf("  %s %s", row.OffsetLabel, row.Path))
				} else {
					lines = append(lines, "  "+row.Path)
				}
			}
		case summarizer.EmptySegment:
			lines = append(lines, s.Label())
		}
	}

	return lines
}
