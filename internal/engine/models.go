package engine

import (
	"context"
	"time"

	"vod-server/internal/transcode"
)

// VideoID uniquely identifies a title in the library.
type VideoID string

// Status is the viewer-observable state of a job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Session is one viewer's access grant to a job's output. Many sessions with
// distinct tokens may point at the same output directory when viewers watch
// the same title concurrently.
type Session struct {
	Token     string
	VideoID   VideoID
	Origin    string
	ExpiresAt time.Time
	OutputDir string
}

// Job is the single encode/copy pipeline for a video identity. At most one
// Job exists per VideoID at a time.
type Job struct {
	VideoID   VideoID
	OutputDir string
	StartedAt time.Time

	// ctx is canceled on eviction; a job still queued for an admission slot
	// gives up its wait when that happens.
	ctx    context.Context
	cancel context.CancelFunc

	// Mutable fields below are guarded by the engine mutex.
	proc   transcode.Process
	mode   transcode.Mode
	failed bool
	exited bool
}

// Watcher tracks active viewer interest in a job, independent of session
// token existence. Only the reaper consumes it.
type Watcher struct {
	VideoID      VideoID
	RefCount     int
	LastActiveAt time.Time
	OutputDir    string
}
