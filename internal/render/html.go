package render

import (
	"fmt"
	"html/template"
	"io"

	"replay/crumbs/internal/summarizer"
)

// HTMLOptions controls the HTML trail
type HTMLOptions struct {
	// ClickURL builds the href for a clickable breadcrumb. When nil clickable
	// items carry only their data-crumb-id attribute.
	ClickURL func(crumbID string) string
}

type htmlItem struct {
	Kind    summarizer.Kind
	Label   string
	CrumbID string
	Href    string
	Link    bool
	Rows    []htmlRow
}

type htmlRow struct {
	CrumbID string
	Path    string
	Offset  string
	Href    string
	Link    bool
}

var trailTemplate = template.Must(template.New("trail").Parse(`<ol class="crumb-trail">
{{- range . }}
{{- if eq .Kind "empty" }}
<li><span class="crumb-empty">{{ .Label }}</span></li>
{{- else if eq .Kind "summary" }}
<li><details class="crumb-summary"><summary>{{ .Label }}</summary><ul>
{{- range .Rows }}
<li class="crumb-row" data-crumb-id="{{ .CrumbID }}">
{{- if .Link }}<a href="{{ .Href }}">{{ .Path }}</a>{{ else }}<span>{{ .Path }}</span>{{ end }}
{{- if .Offset }}<time>{{ .Offset }}</time>{{ end }}</li>
{{- end }}
</ul></details></li>
{{- else }}
<li class="crumb-link" data-crumb-id="{{ .CrumbID }}">
{{- if .Link }}<a href="{{ .Href }}">{{ .Label }}</a>{{ else }}<span>{{ .Label }}</span>{{ end }}</li>
{{- end }}
{{- end }}
</ol>
`))

// HTML writes the segments as an ordered list. Summaries use a details
// element so their rows are revealed on demand.
func HTML(w io.Writer, segments []summarizer.Segment, opts HTMLOptions) error {
	href := func(crumbID string) string {
		if opts.ClickURL == nil {
			return "#"
		}
		return opts.ClickURL(crumbID)
	}

	items := make([]htmlItem, 0, len(segments))
	for _, segment := range segments {
		switch s := segment.(type) {
		case summarizer.LinkSegment:
			if !s.Visible() {
				continue
			}
			items = append(items, htmlItem{
				Kind:    s.Kind(),
				Label:   s.Label(),
				CrumbID: s.Crumb.ID,
				Href:    href(s.Crumb.ID),
				Link:    s.Clickable,
			})
		case summarizer.SummarySegment:
			item := htmlItem{Kind: s.Kind(), Label: s.Label()}
			for _, row := range s.Rows() {
				item.Rows = append(item.Rows, htmlRow{
					CrumbID: row.Crumb.ID,
					Path:    row.Path,
					Offset:  row.OffsetLabel,
					Href:    href(row.Crumb.ID),
					Link:    row.Clickable,
				})
			}
			items = append(items, item)
		case summarizer.EmptySegment:
			items = append(items, htmlItem{Kind: s.Kind(), Label: s.Label()})
		}
	}

	if err := trailTemplate.Execute(w, items); err != nil {
		return fmt.Errorf("failed to render trail: %w", err)
	}
	return nil
}
