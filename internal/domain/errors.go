package domain

import "errors"

var (
	ErrReplayNotFound = errors.New("replay not found")
	ErrCrumbNotFound  = errors.New("breadcrumb not found")
)
