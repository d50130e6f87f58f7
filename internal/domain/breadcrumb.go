package domain

import "strings"

// BreadcrumbData holds the navigation payload of a breadcrumb
type BreadcrumbData struct {
	To   string `json:"to,omitempty"`   // Destination URL
	From string `json:"from,omitempty"` // Origin URL
}

// Breadcrumb is a single navigation event captured during a replay
type Breadcrumb struct {
	ID        string         `json:"id"`
	Type      string         `json:"type,omitempty"`      // e.g. "navigation"
	Category  string         `json:"category,omitempty"`  // e.g. "navigation.push"
	Timestamp int64          `json:"timestamp,omitempty"` // Unix ms, 0 when unknown
	Data      BreadcrumbData `json:"data"`
}

// Destination returns the destination URL without its query string
func (b Breadcrumb) Destination() string {
	path, _, _ := strings.Cut(b.Data.To, "?")
	return path
}

// IsNavigation reports whether a breadcrumb category describes a page navigation
func IsNavigation(category string) bool {
	return category == "navigation" || strings.HasPrefix(category, "navigation.")
}
