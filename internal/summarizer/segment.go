package summarizer

import (
	"encoding/json"
	"time"

	"replay/crumbs/internal/domain"

	"github.com/dustin/go-humanize/english"
)

// ClickHandler is invoked with the breadcrumb a user interacted with
type ClickHandler func(crumb domain.Breadcrumb)

type Kind string

const (
	KindLink    Kind = "link"
	KindSummary Kind = "summary"
	KindEmpty   Kind = "empty"
)

// Segment is one renderable unit of a breadcrumb trail. The concrete types are
// LinkSegment, SummarySegment and EmptySegment.
type Segment interface {
	Kind() Kind
	Label() string
	isSegment()
}

// LinkSegment is a single breadcrumb shown as its destination path
type LinkSegment struct {
	Path      string
	Clickable bool
	Crumb     domain.Breadcrumb

	onClick ClickHandler
}

func (s LinkSegment) Kind() Kind    { return KindLink }
func (s LinkSegment) Label() string { return s.Path }
func (LinkSegment) isSegment()      {}

// Visible is false for links without a destination; renderers skip them.
func (s LinkSegment) Visible() bool {
	return s.Path != ""
}

// Click invokes the click handler with the bound breadcrumb
func (s LinkSegment) Click() bool {
	if !s.Clickable || s.onClick == nil {
		return false
	}
	s.onClick(s.Crumb)
	return true
}

func (s LinkSegment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      Kind   `json:"type"`
		Path      string `json:"path"`
		Clickable bool   `json:"clickable"`
		CrumbID   string `json:"crumb_id"`
	}{KindLink, s.Path, s.Clickable, s.Crumb.ID})
}

// SummarySegment collapses the intermediate breadcrumbs of a long trail
type SummarySegment struct {
	Crumbs            []domain.Breadcrumb
	Clickable         bool
	AnchorTimestampMs int64

	onClick ClickHandler
}

func (s SummarySegment) Kind() Kind    { return KindSummary }
func (s SummarySegment) Count() int    { return len(s.Crumbs) }
func (s SummarySegment) Label() string { return pagesLabel(len(s.Crumbs)) }
func (SummarySegment) isSegment()      {}

// SummaryRow is one wrapped breadcrumb revealed when a summary is expanded
type SummaryRow struct {
	Crumb       domain.Breadcrumb
	Path        string
	OffsetMs    int64
	OffsetLabel string
	Clickable   bool

	onClick ClickHandler
}

// Click invokes the click handler with the row's breadcrumb
func (r SummaryRow) Click() bool {
	if !r.Clickable || r.onClick == nil {
		return false
	}
	r.onClick(r.Crumb)
	return true
}

// Rows returns the expanded rows in trail order
func (s SummarySegment) Rows() []SummaryRow {
	rows := make([]SummaryRow, 0, len(s.Crumbs))
	for _, crumb := range s.Crumbs {
		row := SummaryRow{
			Crumb:     crumb,
			Path:      crumb.Destination(),
			Clickable: s.Clickable,
			onClick:   s.onClick,
		}
		if crumb.Timestamp != 0 && s.AnchorTimestampMs != 0 {
			row.OffsetMs = crumb.Timestamp - s.AnchorTimestampMs
			row.OffsetLabel = formatOffset(row.OffsetMs)
		}
		rows = append(rows, row)
	}
	return rows
}

func (s SummarySegment) MarshalJSON() ([]byte, error) {
	type row struct {
		CrumbID     string `json:"crumb_id"`
		Path        string `json:"path"`
		OffsetMs    int64  `json:"offset_ms"`
		OffsetLabel string `json:"offset_label,omitempty"`
		Clickable   bool   `json:"clickable"`
	}

	rows := make([]row, 0, len(s.Crumbs))
	for _, r := range s.Rows() {
		rows = append(rows, row{r.Crumb.ID, r.Path, r.OffsetMs, r.OffsetLabel, r.Clickable})
	}

	return json.Marshal(struct {
		Type              Kind   `json:"type"`
		Count             int    `json:"count"`
		Label             string `json:"label"`
		Clickable         bool   `json:"clickable"`
		AnchorTimestampMs int64  `json:"anchor_timestamp_ms"`
		Rows              []row  `json:"rows"`
	}{KindSummary, s.Count(), s.Label(), s.Clickable, s.AnchorTimestampMs, rows})
}

// EmptySegment stands in for a trail without breadcrumbs
type EmptySegment struct{}

func (EmptySegment) Kind() Kind    { return KindEmpty }
func (EmptySegment) Count() int    { return 0 }
func (EmptySegment) Label() string { return pagesLabel(0) }
func (EmptySegment) isSegment()    {}

func (s EmptySegment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  Kind   `json:"type"`
		Count int    `json:"count"`
		Label string `json:"label"`
	}{KindEmpty, 0, s.Label()})
}

// Represented returns how many breadcrumbs a segment stands for. The empty
// segment counts as one synthetic marker.
func Represented(segment Segment) int {
	switch s := segment.(type) {
	case LinkSegment:
		return 1
	case SummarySegment:
		return s.Count()
	case EmptySegment:
		return 1
	default:
		return 0
	}
}

func pagesLabel(n int) string {
	return english.Plural(n, "Page", "")
}

func formatOffset(ms int64) string {
	d := (time.Duration(ms) * time.Millisecond).Round(time.Second)
	if d < 0 {
		return d.String()
	}
	return "+" + d.String()
}
