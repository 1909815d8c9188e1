package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vod-server/internal/library"
	"vod-server/internal/platform/logger"
	"vod-server/internal/transcode"
)

// fakeClock is a mutex-guarded clock injected as Engine.now.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// stubResolver resolves ids from a fixed map and returns the catalog's
// unknown-id error otherwise.
type stubResolver struct {
	paths map[string]string
}

func (r *stubResolver) Resolve(videoID string) (string, error) {
	p, ok := r.paths[videoID]
	if !ok {
		return "", library.ErrUnknownID
	}
	return p, nil
}

// stubProber reports fixed codecs without touching any external tool.
type stubProber struct {
	codecs transcode.Codecs
}

func (p *stubProber) Probe(_ context.Context, _ string) transcode.Codecs {
	return p.codecs
}

// fakeProc is a controllable process handed out by fakeRunner.
type fakeProc struct {
	mu     sync.Mutex
	done   chan struct{}
	err    error
	killed bool
}

func (p *fakeProc) Done() <-chan struct{} { return p.done }

func (p *fakeProc) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.finish(fmt.Errorf("killed"))
	return nil
}

func (p *fakeProc) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// finish simulates process exit; err nil means exit status zero.
func (p *fakeProc) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
	default:
		p.err = err
		close(p.done)
	}
}

// fakeRunner records every launch and hands back fakeProcs.
type fakeRunner struct {
	mu     sync.Mutex
	starts []transcode.CommandSpec
	procs  []*fakeProc
}

func (r *fakeRunner) Start(spec transcode.CommandSpec) (transcode.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &fakeProc{done: make(chan struct{})}
	r.starts = append(r.starts, spec)
	r.procs = append(r.procs, p)
	return p, nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.starts)
}

func (r *fakeRunner) proc(i int) *fakeProc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.procs[i]
}

func (r *fakeRunner) spec(i int) transcode.CommandSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts[i]
}

type testEnv struct {
	eng    *Engine
	runner *fakeRunner
	clock  *fakeClock
}

func newTestEngine(t *testing.T, cfg Config, codecs transcode.Codecs) *testEnv {
	t.Helper()
	if cfg.DataDir == "" {
		cfg.DataDir = t.TempDir()
	}
	if cfg.OutputWait == 0 {
		cfg.OutputWait = 200 * time.Millisecond
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.MinReadySegments == 0 {
		cfg.MinReadySegments = 3
	}

	resolver := &stubResolver{paths: map[string]string{
		"v1": "/library/v1.mp4",
		"v2": "/library/v2.mp4",
	}}
	runner := &fakeRunner{}
	clock := newFakeClock()

	eng := New(cfg, logger.Nop(), nil, resolver, &stubProber{codecs: codecs}, runner)
	eng.now = clock.now
	t.Cleanup(eng.Shutdown)

	return &testEnv{eng: eng, runner: runner, clock: clock}
}

func unknownCodecs() transcode.Codecs {
	return transcode.Codecs{Video: transcode.CodecUnknown, Audio: transcode.CodecUnknown}
}

func writeSegments(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("seg_%05d.ts", i)
		if err := os.WriteFile(filepath.Join(dir, name), []byte("segment"), 0o644); err != nil {
			t.Fatalf("write segment: %v", err)
		}
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func (env *testEnv) outputDir(t *testing.T, id VideoID) string {
	t.Helper()
	env.eng.mu.Lock()
	defer env.eng.mu.Unlock()
	job := env.eng.jobs[id]
	if job == nil {
		t.Fatalf("no job for %s", id)
	}
	return job.OutputDir
}
