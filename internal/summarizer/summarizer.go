// Package summarizer turns an ordered list of navigation breadcrumbs into a
// short trail of segments: the first and last destinations with everything in
// between collapsed into a single "N Pages" summary.
package summarizer

import "replay/crumbs/internal/domain"

// Trails longer than this are collapsed into link, summary, link.
const summaryThreshold = 3

// Summarize builds the segments for crumbs. onClick may be nil, in which case
// no segment is clickable. anchorTimestampMs only affects the offsets shown in
// summary rows. crumbs is never modified.
func Summarize(crumbs []domain.Breadcrumb, onClick ClickHandler, anchorTimestampMs int64) []Segment {
	if len(crumbs) == 0 {
		return []Segment{EmptySegment{}}
	}

	clickable := onClick != nil
	first := crumbs[0].Destination()
	last := crumbs[len(crumbs)-1].Destination()

	if len(crumbs) > summaryThreshold {
		middle := make([]domain.Breadcrumb, len(crumbs)-2)
		copy(middle, crumbs[1:len(crumbs)-1])

		return []Segment{
			LinkSegment{Path: first, Clickable: clickable, Crumb: crumbs[0], onClick: onClick},
			SummarySegment{Crumbs: middle, Clickable: clickable, AnchorTimestampMs: anchorTimestampMs, onClick: onClick},
			LinkSegment{Path: last, Clickable: clickable, Crumb: crumbs[len(crumbs)-1], onClick: onClick},
		}
	}

	segments := make([]Segment, 0, len(crumbs))
	for _, crumb := range crumbs {
		// Short trails display the first destination on every link.
		segments = append(segments, LinkSegment{Path: first, Clickable: clickable, Crumb: crumb, onClick: onClick})
	}

	return segments
}

// FindClickable returns a click target bound to the breadcrumb with crumbID:
// either a link segment or a summary row.
func FindClickable(segments []Segment, crumbID string) (func() bool, bool) {
	for _, segment := range segments {
		switch s := segment.(type) {
		case LinkSegment:
			if s.Crumb.ID == crumbID && s.Visible() {
				return s.Click, true
			}
		case SummarySegment:
			for _, row := range s.Rows() {
				if row.Crumb.ID == crumbID {
					return row.Click, true
				}
			}
		case EmptySegment:
		}
	}
	return nil, false
}
