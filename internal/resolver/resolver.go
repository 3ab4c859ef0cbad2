// Package resolver turns URLs or search queries into playable local files.
package resolver

import (
	"context"
	"errors"
	"time"
)

// Classified resolution failures. Callers use errors.Is (or Classify) to
// pick a backoff policy; anything else is an ordinary failure.
var (
	ErrRateLimited = errors.New("resolver: rate limited")
	ErrNotFound    = errors.New("resolver: not found")
)

// Class buckets a resolution error for backoff decisions.
type Class int

const (
	ClassOther Class = iota
	ClassRateLimited
	ClassNotFound
)

// Classify returns the failure class of err.
func Classify(err error) Class {
	switch {
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	default:
		return ClassOther
	}
}

// Progress reports intermediate resolution state.
type Progress struct {
	Percent int
	Status  string
}

// Result is a completed resolution: a local file plus display metadata.
type Result struct {
	FilePath      string
	Title         string
	Artist        string
	ThumbnailPath string
	Duration      time.Duration
}

// Resolver resolves a URL or free-text query to a local media file.
// onProgress may be nil; it is called zero or more times before Resolve
// returns.
type Resolver interface {
	Resolve(ctx context.Context, urlOrQuery string, onProgress func(Progress)) (*Result, error)
}
