package transcode

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// CodecUnknown is reported when a stream's codec cannot be determined.
// Codec information is advisory: an unreadable file still gets a job, it just
// never qualifies for copy mode.
const CodecUnknown = "unknown"

// Codecs holds the probed codec identifiers of a source file's primary
// video and audio streams, lowercased.
type Codecs struct {
	Video string
	Audio string
}

// Prober inspects source files with ffprobe.
type Prober struct {
	FFprobePath string
	Timeout     time.Duration
	Log         *slog.Logger
}

// NewProber returns a Prober using the given ffprobe binary.
func NewProber(ffprobePath string, log *slog.Logger) *Prober {
	return &Prober{
		FFprobePath: ffprobePath,
		Timeout:     10 * time.Second,
		Log:         log,
	}
}

// Probe returns the codecs of the first video and first audio stream of path.
// Failures and timeouts resolve to CodecUnknown, never an error.
func (p *Prober) Probe(ctx context.Context, path string) Codecs {
	return Codecs{
		Video: p.streamCodec(ctx, path, "v:0"),
		Audio: p.streamCodec(ctx, path, "a:0"),
	}
}

func (p *Prober) streamCodec(ctx context.Context, path, selector string) string {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.FFprobePath,
		"-v", "error",
		"-select_streams", selector,
		"-show_entries", "stream=codec_name",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if p.Log != nil {
			p.Log.Debug("ffprobe failed",
				slog.String("path", path),
				slog.String("stream", selector),
				slog.String("error", err.Error()))
		}
		return CodecUnknown
	}

	codec := strings.ToLower(strings.TrimSpace(string(out)))
	if codec == "" {
		return CodecUnknown
	}
	return codec
}
