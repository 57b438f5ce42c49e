// Package engine defines the download engine boundary and its yt-dlp implementation.
package engine

import (
	"context"

	"clipd/internal/entity"
)

// EventKind identifies an engine event.
type EventKind string

// Engine event kinds.
const (
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// Event is an asynchronous notification from the engine, keyed by the
// engine-scoped id returned from Start. The orchestrator owns the mapping
// back to its own job ids; engine ids never leave this boundary.
type Event struct {
	EngineID string
	Kind     EventKind

	// Status is set for progress events: downloading or processing.
	Status          entity.Status
	Progress        float64
	DownloadedBytes int64
	TotalBytes      int64
	Speed           int64
	ETA             int64
	FilePath        string
	Error           string
}

// Engine is the external download engine boundary. Start may reject a job
// synchronously; everything after that arrives on the event stream.
type Engine interface {
	// Start begins a download and returns the engine-scoped id for it.
	Start(ctx context.Context, url string, opts entity.Options) (string, error)

	// Cancel requests cancellation of a running download. Best effort: a
	// false return means the engine could not honor the request and the
	// download is still running.
	Cancel(engineID string) bool

	// FetchInfo resolves video metadata for a URL without downloading.
	FetchInfo(ctx context.Context, url string) (entity.VideoInfo, error)

	// Events returns the engine's event stream.
	Events() <-chan Event
}
