// Package entity defines the core entities used in the application.
package entity

import (
	"log/slog"
	"time"
)

// Status represents the lifecycle status of a download job.
type Status string

const (
	// StatusInitializing indicates that the job was handed to the engine and is starting up.
	StatusInitializing Status = "initializing"
	// StatusQueued indicates that the job is waiting for a free download slot.
	StatusQueued Status = "queued"
	// StatusDownloading indicates that the download is in progress.
	StatusDownloading Status = "downloading"
	// StatusProcessing indicates that the engine is post-processing the downloaded media.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates that the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates that the job failed.
	StatusFailed Status = "failed"
	// StatusCancelled indicates that the job was cancelled by the user.
	StatusCancelled Status = "cancelled"
	// StatusRetrying indicates a job synthesized from a previously failed one.
	StatusRetrying Status = "retrying"
)

// Terminal reports whether no further automatic transitions occur from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Options holds the download options the orchestrator passes through to the
// engine. The orchestrator never interprets them beyond stripping the trim
// range: the full asset is always cached, trimming happens downstream in the
// editor.
type Options struct {
	Quality   string `json:"quality"`
	Format    string `json:"format"`
	AudioOnly bool   `json:"audioOnly"`

	EmbedThumbnail bool `json:"embedThumbnail"`
	EmbedMetadata  bool `json:"embedMetadata"`

	DownloadSubtitles bool     `json:"downloadSubtitles"`
	SubtitleLanguages []string `json:"subtitleLanguages,omitempty"`
	EmbedSubtitles    bool     `json:"embedSubtitles"`

	// TrimStart/TrimEnd are editor hints in HH:MM:SS form. Cleared before the
	// job is created; kept in the struct so UI payloads round-trip.
	TrimStart string `json:"trimStart,omitempty"`
	TrimEnd   string `json:"trimEnd,omitempty"`
}

// StripTrim clears the trim range from the options.
func (o *Options) StripTrim() {
	o.TrimStart = ""
	o.TrimEnd = ""
}

// Progress is the externally visible snapshot of a download job.
// DownloadID always mirrors the owning job's ID, never the engine-scoped id.
type Progress struct {
	DownloadID      string    `json:"downloadId"`
	Status          Status    `json:"status"`
	Progress        float64   `json:"progress"` // 0-100
	DownloadedBytes int64     `json:"downloadedBytes"`
	TotalBytes      int64     `json:"totalBytes"`
	Speed           int64     `json:"speed"` // bytes per second
	ETA             int64     `json:"eta"`   // seconds
	FilePath        string    `json:"filePath,omitempty"`
	Error           string    `json:"error,omitempty"`
	RetryCount      int       `json:"retryCount"`
	StartTime       time.Time `json:"startTime"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (p Progress) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("download_id", p.DownloadID),
		slog.String("status", string(p.Status)),
		slog.Float64("progress", p.Progress),
		slog.Int64("downloaded_bytes", p.DownloadedBytes),
		slog.Int64("total_bytes", p.TotalBytes),
		slog.Int64("speed", p.Speed),
		slog.Int64("eta", p.ETA),
		slog.Int("retry_count", p.RetryCount),
	)
}

// Job is the orchestrator's unit of work. The orchestrator is the only writer
// of Progress; EngineID is internal correlation state and is never serialized.
type Job struct {
	ID       string   `json:"id"`
	URL      string   `json:"url"`
	Title    string   `json:"title,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Options  Options  `json:"options"`
	Progress Progress `json:"progress"`

	CreatedAt   time.Time `json:"createdAt"`
	StartedAt   time.Time `json:"startedAt,omitzero"`
	CompletedAt time.Time `json:"completedAt,omitzero"`

	EngineID string `json:"-"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (j Job) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", j.ID),
		slog.String("url", j.URL),
		slog.String("status", string(j.Progress.Status)),
		slog.Float64("progress", j.Progress.Progress),
		slog.Int("retry_count", j.Progress.RetryCount),
	)
}

// Record is the persisted form of a terminal job. It carries a copy of the
// url and options so retrying after a restart keeps the user's choices.
type Record struct {
	Progress    Progress  `json:"progress"`
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	Options     Options   `json:"options"`
	CompletedAt time.Time `json:"completedAt,omitzero"`
}

// VideoInfo holds the metadata the engine resolves for a URL before download.
type VideoInfo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Channel   string  `json:"channel,omitempty"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	Duration  float64 `json:"duration,omitempty"` // seconds
	WebURL    string  `json:"webUrl,omitempty"`
	Extractor string  `json:"extractor,omitempty"`
}

// EventType identifies a lifecycle event emitted by the orchestrator.
type EventType string

// Lifecycle events.
const (
	EventQueued    EventType = "queued"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
	EventDeleted   EventType = "deleted"
)

// Event is delivered to subscribers for every job lifecycle change. For
// EventDeleted only Progress.DownloadID is meaningful.
type Event struct {
	Type     EventType `json:"type"`
	Progress Progress  `json:"progress"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (e Event) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", string(e.Type)),
		slog.String("download_id", e.Progress.DownloadID),
		slog.String("status", string(e.Progress.Status)),
	)
}
