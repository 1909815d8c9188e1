package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"vod-server/internal/transcode"
)

var errNoOutput = errors.New("encoder produced no output within the wait window")

// IssueResult is what session issuance reports back to the viewer.
type IssueResult struct {
	Token  string
	Status Status
	HLSURL string
}

// IssueSession resolves the source, attaches to (or creates) the job for the
// video identity, and returns a fresh session token. It never waits for
// readiness: callers poll or subscribe for status.
func (e *Engine) IssueSession(id VideoID, origin string, previewQuality bool) (IssueResult, error) {
	if id == "" {
		return IssueResult{}, ErrMissingID
	}
	src, err := e.resolver.Resolve(string(id))
	if err != nil {
		return IssueResult{}, err
	}

	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok {
		job, err = e.createJobLocked(id, src, previewQuality)
		if err != nil {
			e.mu.Unlock()
			return IssueResult{}, err
		}
	}
	token, err := newToken()
	if err != nil {
		e.mu.Unlock()
		return IssueResult{}, err
	}
	sess := &Session{
		Token:     token,
		VideoID:   id,
		Origin:    origin,
		ExpiresAt: e.now().Add(e.cfg.SessionTTL),
		OutputDir: job.OutputDir,
	}
	e.sessions[token] = sess
	if w := e.watchers[id]; w != nil {
		w.LastActiveAt = e.now()
	}
	outputDir := job.OutputDir
	e.mu.Unlock()

	if e.met != nil {
		e.met.IncSessionsIssued()
	}

	res := IssueResult{Token: token, Status: e.statusFor(id, outputDir)}
	if res.Status == StatusReady {
		res.HLSURL = hlsURL(token)
	}
	return res, nil
}

// createJobLocked registers a new job and spawns its pipeline goroutine.
// Caller must hold e.mu.
func (e *Engine) createJobLocked(id VideoID, src string, previewQuality bool) (*Job, error) {
	dir := filepath.Join(e.cfg.DataDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		VideoID:   id,
		OutputDir: dir,
		StartedAt: e.now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	e.jobs[id] = job
	e.watchers[id] = &Watcher{VideoID: id, LastActiveAt: e.now(), OutputDir: dir}

	go e.runJob(job, src, previewQuality)
	return job, nil
}

// runJob drives one job through admission, probing, launch, the
// copy-to-encode fallback, and exit observation.
func (e *Engine) runJob(job *Job, src string, previewQuality bool) {
	// Admission: block until the live process count is below the ceiling.
	// There is deliberately no timeout here (reference behavior); the wait
	// ends early only if the job is evicted while queued.
	if err := e.sem.Acquire(job.ctx, 1); err != nil {
		return
	}
	defer e.sem.Release(1)

	codecs := e.prober.Probe(job.ctx, src)
	mode := transcode.ModeEncode
	if transcode.CanCopy(codecs, previewQuality, e.cfg.ForceEncode, e.cfg.AllowCopy) {
		mode = transcode.ModeCopy
	}
	e.log.Info("job starting",
		slog.String("video_id", string(job.VideoID)),
		slog.String("mode", string(mode)),
		slog.String("video_codec", codecs.Video),
		slog.String("audio_codec", codecs.Audio),
	)

	if err := transcode.EnsureKey(job.OutputDir, transcode.KeyName); err != nil {
		e.failJob(job, err)
		return
	}

	proc, err := e.startProcess(job, src, mode, previewQuality)
	if err != nil {
		e.failJob(job, err)
		return
	}

	if !e.waitOutput(job) {
		_ = proc.Kill()
		<-proc.Done()
		if mode != transcode.ModeCopy {
			e.failJob(job, errNoOutput)
			return
		}

		// Copy mode stalled: restart in encode mode. The viewer-facing
		// status stays "processing" across this internal retry.
		e.log.Warn("copy produced no output, restarting in encode mode",
			slog.String("video_id", string(job.VideoID)))
		if e.met != nil {
			e.met.IncCopyFallbacks()
		}
		proc, err = e.startProcess(job, src, transcode.ModeEncode, previewQuality)
		if err != nil {
			e.failJob(job, err)
			return
		}
		if !e.waitOutput(job) {
			_ = proc.Kill()
			<-proc.Done()
			e.failJob(job, errNoOutput)
			return
		}
	}

	<-proc.Done()
	exitErr := proc.Err()
	ready := readyOnDisk(job.OutputDir, e.cfg.MinReadySegments)

	e.mu.Lock()
	job.proc = nil
	job.exited = true
	if exitErr != nil && !ready {
		job.failed = true
	}
	e.mu.Unlock()

	if exitErr != nil && !ready {
		e.log.Error("job failed",
			slog.String("video_id", string(job.VideoID)),
			slog.String("error", exitErr.Error()))
		return
	}
	e.log.Info("job finished", slog.String("video_id", string(job.VideoID)))
}

func (e *Engine) startProcess(job *Job, src string, mode transcode.Mode, previewQuality bool) (transcode.Process, error) {
	spec := e.builder.Build(src, job.OutputDir, mode, previewQuality)
	proc, err := e.runner.Start(spec)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	job.proc = proc
	job.mode = mode
	e.mu.Unlock()
	if e.met != nil {
		e.met.IncTranscodesStarted()
	}
	return proc, nil
}

// waitOutput polls until the job's output directory is ready (manifest or
// enough segments) or the bounded wait expires.
func (e *Engine) waitOutput(job *Job) bool {
	deadline := time.Now().Add(e.cfg.OutputWait)
	t := time.NewTicker(e.cfg.PollInterval)
	defer t.Stop()
	for {
		if readyOnDisk(job.OutputDir, e.cfg.MinReadySegments) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-job.ctx.Done():
			return false
		case <-t.C:
		}
	}
}

func (e *Engine) failJob(job *Job, err error) {
	e.mu.Lock()
	job.failed = true
	job.proc = nil
	e.mu.Unlock()
	e.log.Error("job failed",
		slog.String("video_id", string(job.VideoID)),
		slog.String("error", err.Error()))
}

// statusFor derives the viewer-observable status. Ready wins: output that
// reached the minimum segment count stays playable even if the process later
// died.
func (e *Engine) statusFor(id VideoID, outputDir string) Status {
	if readyOnDisk(outputDir, e.cfg.MinReadySegments) {
		return StatusReady
	}
	e.mu.Lock()
	job := e.jobs[id]
	var dead bool
	if job == nil {
		dead = true
	} else {
		dead = job.failed || job.exited
	}
	e.mu.Unlock()
	if dead {
		return StatusError
	}
	return StatusProcessing
}

// SessionState reports the status a given session observes, plus the
// manifest URL once ready.
func (e *Engine) SessionState(s Session) (Status, string) {
	st := e.statusFor(s.VideoID, s.OutputDir)
	if st == StatusReady {
		return st, hlsURL(s.Token)
	}
	return st, ""
}

// WatchBegin marks the start of active status observation (a live
// subscription) for a video's job.
func (e *Engine) WatchBegin(id VideoID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w := e.watchers[id]; w != nil {
		w.RefCount++
		w.LastActiveAt = e.now()
	}
}

// WatchEnd marks the end of active status observation.
func (e *Engine) WatchEnd(id VideoID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w := e.watchers[id]; w != nil {
		if w.RefCount > 0 {
			w.RefCount--
		}
		w.LastActiveAt = e.now()
	}
}

// TouchWatcher refreshes a job's last-active timestamp without changing the
// refcount. Called on status polls and media access.
func (e *Engine) TouchWatcher(id VideoID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w := e.watchers[id]; w != nil {
		w.LastActiveAt = e.now()
	}
}

func hlsURL(token string) string {
	return "/hls/" + token + "/" + transcode.ManifestName
}
