package engine

import (
	"log/slog"
	"os"

	"vod-server/internal/transcode"
)

// Sweep expires stale sessions and evicts jobs whose watcher refcount has
// been zero past the idle TTL, deleting output directories nothing references
// anymore. Driven periodically from main; safe to call concurrently with
// request handling.
func (e *Engine) Sweep() {
	now := e.now()

	var candidates []string

	e.mu.Lock()
	for token, s := range e.sessions {
		if now.After(s.ExpiresAt) {
			delete(e.sessions, token)
			candidates = append(candidates, s.OutputDir)
		}
	}

	type evicted struct {
		job  *Job
		proc transcode.Process
	}
	var evictions []evicted
	for id, w := range e.watchers {
		if w.RefCount > 0 || now.Sub(w.LastActiveAt) < e.cfg.JobIdleTTL {
			continue
		}
		job := e.jobs[id]
		delete(e.watchers, id)
		if job == nil {
			continue
		}
		delete(e.jobs, id)
		evictions = append(evictions, evicted{job: job, proc: job.proc})
		candidates = append(candidates, job.OutputDir)
	}

	// A directory is deletable only once no surviving session or job points
	// at it.
	var deletable []string
	seen := make(map[string]bool)
	for _, dir := range candidates {
		if seen[dir] || e.referencedLocked(dir) {
			continue
		}
		seen[dir] = true
		deletable = append(deletable, dir)
	}
	e.mu.Unlock()

	for _, ev := range evictions {
		ev.job.cancel()
		if ev.proc != nil {
			if err := ev.proc.Kill(); err != nil {
				e.log.Warn("kill on eviction",
					slog.String("video_id", string(ev.job.VideoID)),
					slog.String("error", err.Error()))
			}
		}
		if e.met != nil {
			e.met.IncJobsEvicted()
		}
		e.log.Info("idle job evicted", slog.String("video_id", string(ev.job.VideoID)))
	}

	for _, dir := range deletable {
		if err := os.RemoveAll(dir); err != nil {
			e.log.Warn("remove output dir",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
		}
	}
}

// referencedLocked reports whether any live session or job still points at
// dir. Caller must hold e.mu.
func (e *Engine) referencedLocked(dir string) bool {
	for _, s := range e.sessions {
		if s.OutputDir == dir {
			return true
		}
	}
	for _, j := range e.jobs {
		if j.OutputDir == dir {
			return true
		}
	}
	return false
}
