package domain

// Replay is the replay metadata needed to anchor a breadcrumb trail
type Replay struct {
	ID          string `json:"id"`
	ProjectSlug string `json:"project_slug,omitempty"`
	StartedAt   int64  `json:"started_at"` // Unix ms, the anchor for relative offsets
	Count       int    `json:"count"`      // Number of navigation breadcrumbs
}

// Trail is a replay together with its ordered navigation breadcrumbs
type Trail struct {
	Replay      Replay       `json:"replay"`
	Breadcrumbs []Breadcrumb `json:"breadcrumbs"`
}
