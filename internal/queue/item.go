package queue

import "time"

// Kind distinguishes how an item's content is interpreted.
type Kind int

const (
	KindURL Kind = iota
	KindFile
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindURL:
		return "url"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Download status constants for pending items.
//
// Status only moves forward (pending -> preparing -> downloading -> ready);
// an error status is terminal. Failed items are retried only by an explicit
// prefetch request, never in place.
const (
	StatusPending     = "pending"
	StatusPreparing   = "preparing"
	StatusDownloading = "downloading"
	StatusReady       = "ready"
	StatusError       = "error"
)

// Item is a single pending playback request.
type Item struct {
	ID            string
	Kind          Kind
	Content       string // URL or filesystem path
	SourceURL     string // original URL, kept when Content is rewritten to a file path
	Title         string
	Artist        string
	RequesterID   string
	OriginChannel string
	Priority      bool // computed once at enqueue time

	DownloadStatus   string
	DownloadProgress int // 0-100
	Thumbnail        string
	Duration         time.Duration
}
