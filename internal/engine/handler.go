package engine

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vod-server/internal/library"
	"vod-server/internal/platform/metrics"
	"vod-server/internal/transcode"
)

const manifestContentType = "application/vnd.apple.mpegurl"

// Handler exposes the engine's HTTP endpoints using go-chi.
type Handler struct {
	eng *Engine
	log *slog.Logger
	met *metrics.Metrics
}

// NewHandler returns a Handler. Metrics may be nil (e.g. in tests).
func NewHandler(eng *Engine, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{eng: eng, log: log, met: m}
}

// Mount registers all engine routes on the given router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/api/session", h.IssueSession)
	r.Get("/api/session/status", h.SessionStatus)
	r.Get("/api/session/events", h.SessionEvents)
	r.Get("/hlskey/{token}/"+transcode.KeyName, h.ServeKey)
	r.Get("/hls/{token}/{file}", h.ServeMedia)
}

type sessionResponse struct {
	Token  string `json:"token"`
	Status Status `json:"status"`
	HLSURL string `json:"hlsUrl,omitempty"`
}

type statusResponse struct {
	Status Status `json:"status"`
	HLSURL string `json:"hlsUrl,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// IssueSession handles GET /api/session?id=<videoId>[&preview=1].
func (h *Handler) IssueSession(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing id"})
		return
	}
	preview := r.URL.Query().Get("preview") == "1"

	res, err := h.eng.IssueSession(VideoID(id), originOf(r), preview)
	if err != nil {
		switch {
		case errors.Is(err, library.ErrUnknownID), errors.Is(err, library.ErrFileMissing):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown video"})
		case errors.Is(err, library.ErrOutsideRoot):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid video"})
		default:
			h.log.Error("session issuance failed",
				slog.String("video_id", id),
				slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	body := sessionResponse{Token: res.Token, Status: res.Status, HLSURL: res.HLSURL}
	if res.Status == StatusReady {
		writeJSON(w, http.StatusOK, body)
		return
	}
	writeJSON(w, http.StatusAccepted, body)
}

// SessionStatus handles GET /api/session/status?token=<t>: a point-in-time
// status query.
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing token"})
		return
	}
	sess, err := h.eng.ValidateSession(token, originOf(r))
	if err != nil {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "invalid session"})
		return
	}
	h.eng.TouchWatcher(sess.VideoID)

	st, hlsURL := h.eng.SessionState(sess)
	writeJSON(w, http.StatusOK, statusResponse{Status: st, HLSURL: hlsURL})
}

// SessionEvents handles GET /api/session/events?token=<t>: a push-style
// status stream. One event per status change; the stream closes once a
// terminal state is reached. A subscriber that connects after ready still
// receives one immediate snapshot.
func (h *Handler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing token"})
		return
	}
	sess, err := h.eng.ValidateSession(token, originOf(r))
	if err != nil {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "invalid session"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	h.eng.WatchBegin(sess.VideoID)
	defer h.eng.WatchEnd(sess.VideoID)

	ticker := time.NewTicker(h.eng.PollInterval())
	defer ticker.Stop()

	var last Status
	for {
		st, hlsURL := h.eng.SessionState(sess)
		if st != last {
			payload, _ := json.Marshal(statusResponse{Status: st, HLSURL: hlsURL})
			if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
			last = st
			if st == StatusReady || st == StatusError {
				return
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		// Keep the session alive while the viewer holds the stream open.
		if _, err := h.eng.ValidateSession(token, originOf(r)); err != nil {
			return
		}
	}
}

// ServeKey handles GET /hlskey/{token}/key.bin.
func (h *Handler) ServeKey(w http.ResponseWriter, r *http.Request) {
	sess, err := h.eng.ValidateSession(chi.URLParam(r, "token"), originOf(r))
	if err != nil {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "invalid session"})
		return
	}

	data, err := os.ReadFile(filepath.Join(sess.OutputDir, transcode.KeyName))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	noCache(w)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ServeMedia handles GET /hls/{token}/{file}: the manifest (always
// synthesized per session, so each viewer's copy carries their own key URI)
// or raw segment bytes.
func (h *Handler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	sess, err := h.eng.ValidateSession(chi.URLParam(r, "token"), originOf(r))
	if err != nil {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "invalid session"})
		return
	}
	h.eng.TouchWatcher(sess.VideoID)

	name := chi.URLParam(r, "file")

	if name == transcode.ManifestName {
		manifest, err := h.eng.SynthesizeManifest(sess.OutputDir, sess.Token)
		if errors.Is(err, ErrNotReady) {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			h.log.Error("manifest synthesis failed",
				slog.String("video_id", string(sess.VideoID)),
				slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		noCache(w)
		w.Header().Set("Content-Type", manifestContentType)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(manifest))
		return
	}

	// Only segment files are reachable here; everything else, including
	// traversal attempts, is a 404.
	if !segmentNameRe.MatchString(name) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	path := filepath.Join(sess.OutputDir, name)
	if !strings.HasPrefix(path, filepath.Clean(sess.OutputDir)+string(filepath.Separator)) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if _, err := os.Stat(path); err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	noCache(w)
	w.Header().Set("Content-Type", "video/mp2t")
	http.ServeFile(w, r, path)
}

// originOf returns the network origin a request came from, without the port:
// sessions must survive the client using ephemeral ports.
func originOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
