package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"vod-server/internal/platform/metrics"
	"vod-server/internal/transcode"
)

// Config holds the engine's tunables. Zero values are replaced with the
// defaults below.
type Config struct {
	DataDir          string
	FFmpegPath       string
	SegmentSeconds   int
	MaxTranscodes    int64
	SessionTTL       time.Duration
	PinOrigin        bool
	MinReadySegments int
	JobIdleTTL       time.Duration
	AllowCopy        bool
	ForceEncode      bool

	// OutputWait bounds how long a freshly launched process may run without
	// producing output before the copy-to-encode fallback (or failure) kicks
	// in.
	OutputWait time.Duration

	// PollInterval paces the bounded file-appearance waits and the status
	// push stream.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.SegmentSeconds <= 0 {
		c.SegmentSeconds = 4
	}
	if c.MaxTranscodes <= 0 {
		c.MaxTranscodes = 2
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 10 * time.Minute
	}
	if c.MinReadySegments <= 0 {
		c.MinReadySegments = 3
	}
	if c.JobIdleTTL <= 0 {
		c.JobIdleTTL = 5 * time.Minute
	}
	if c.OutputWait <= 0 {
		c.OutputWait = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	return c
}

// SourceResolver is the catalog collaborator: it maps a video id to an
// absolute source path. The engine never walks the library itself.
type SourceResolver interface {
	Resolve(videoID string) (string, error)
}

// CodecProber inspects a source file's primary stream codecs.
type CodecProber interface {
	Probe(ctx context.Context, path string) transcode.Codecs
}

// Engine owns the in-process session, job, and watcher registries and
// supervises external encoder processes. All state is process-local; a
// restart invalidates every session and job.
type Engine struct {
	cfg      Config
	log      *slog.Logger
	met      *metrics.Metrics
	resolver SourceResolver
	prober   CodecProber
	runner   transcode.Runner
	builder  *transcode.CommandBuilder
	sem      *semaphore.Weighted

	// now is swappable for deterministic expiry tests.
	now func() time.Time

	mu       sync.Mutex
	jobs     map[VideoID]*Job
	sessions map[string]*Session
	watchers map[VideoID]*Watcher
}

// New constructs an Engine. met may be nil to disable metric recording
// (e.g. in tests).
func New(cfg Config, log *slog.Logger, met *metrics.Metrics, resolver SourceResolver, prober CodecProber, runner transcode.Runner) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:      cfg,
		log:      log,
		met:      met,
		resolver: resolver,
		prober:   prober,
		runner:   runner,
		builder: &transcode.CommandBuilder{
			FFmpegPath:     cfg.FFmpegPath,
			SegmentSeconds: cfg.SegmentSeconds,
		},
		sem:      semaphore.NewWeighted(cfg.MaxTranscodes),
		now:      time.Now,
		jobs:     make(map[VideoID]*Job),
		sessions: make(map[string]*Session),
		watchers: make(map[VideoID]*Watcher),
	}
}

// PollInterval exposes the configured poll pace for the status push stream.
func (e *Engine) PollInterval() time.Duration {
	return e.cfg.PollInterval
}

// Counts returns the number of tracked jobs and sessions, for metrics gauges.
func (e *Engine) Counts() (jobs, sessions int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs), len(e.sessions)
}

// Shutdown kills every live encoder process. Registries are not persisted,
// so nothing else needs flushing.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	var procs []transcode.Process
	for _, job := range e.jobs {
		job.cancel()
		if job.proc != nil {
			procs = append(procs, job.proc)
		}
	}
	e.mu.Unlock()

	for _, p := range procs {
		if err := p.Kill(); err != nil {
			e.log.Warn("kill on shutdown", slog.String("error", err.Error()))
		}
	}
}
