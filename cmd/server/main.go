package main

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"

	"vod-server/internal/engine"
	"vod-server/internal/library"
	"vod-server/internal/platform/config"
	"vod-server/internal/platform/logger"
	"vod-server/internal/platform/metrics"
	"vod-server/internal/transcode"
)

const shutdownTimeout = 10 * time.Second

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".webm": true,
	".m4v":  true,
}

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	libraryDir := config.GetEnv("LIBRARY_DIR", "./library")
	dataDir := config.GetEnv("DATA_DIR", "./data")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	reaperInterval := config.GetEnvDuration("REAPER_INTERVAL", 30*time.Second)

	log := logger.New(logLevel, logFormat)

	cfg := engine.Config{
		DataDir:          dataDir,
		FFmpegPath:       config.GetEnv("FFMPEG_PATH", "ffmpeg"),
		SegmentSeconds:   config.GetEnvInt("SEGMENT_SECONDS", 4),
		MaxTranscodes:    int64(config.GetEnvInt("MAX_TRANSCODES", 2)),
		SessionTTL:       config.GetEnvDuration("SESSION_TTL", 10*time.Minute),
		PinOrigin:        config.GetEnvBool("PIN_ORIGIN", true),
		MinReadySegments: config.GetEnvInt("MIN_READY_SEGMENTS", 3),
		JobIdleTTL:       config.GetEnvDuration("JOB_IDLE_TTL", 5*time.Minute),
		AllowCopy:        config.GetEnvBool("ALLOW_COPY", false),
		ForceEncode:      config.GetEnvBool("FORCE_ENCODE", false),
		OutputWait:       config.GetEnvDuration("OUTPUT_WAIT", 30*time.Second),
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Error("create data dir", "error", err)
		os.Exit(1)
	}

	ix := library.NewIndex(libraryDir)
	seedLibrary(ix, libraryDir, log)

	met := metrics.New()
	prober := transcode.NewProber(config.GetEnv("FFPROBE_PATH", "ffprobe"), log)
	runner := &transcode.ExecRunner{Log: log}
	eng := engine.New(cfg, log, met, ix, prober, runner)
	h := engine.NewHandler(eng, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			jobs, sessions := eng.Counts()
			met.SetActiveJobs(jobs)
			met.SetActiveSessions(sessions)
		}).ServeHTTP(w, r)
	})
	h.Mount(r)

	reaper := cron.New()
	if _, err := reaper.AddFunc("@every "+reaperInterval.String(), eng.Sweep); err != nil {
		log.Error("schedule reaper", "error", err)
		os.Exit(1)
	}
	reaper.Start()

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"library_dir", libraryDir,
		"data_dir", dataDir,
		"max_transcodes", cfg.MaxTranscodes,
		"allow_copy", cfg.AllowCopy,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	reaper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	eng.Shutdown()

	log.Info("server stopped")
}

// seedLibrary fills the index from a directory walk, using the relative path
// as the video id. A real catalog (hashing, rename detection) would replace
// this; the engine only sees the Resolve interface either way.
func seedLibrary(ix *library.Index, root string, log *slog.Logger) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !videoExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		ix.Add(rel, rel)
		count++
		return nil
	})
	if err != nil {
		log.Warn("library walk failed", "error", err)
	}
	log.Info("library indexed", "videos", count)
}
