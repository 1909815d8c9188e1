package transcode

import (
	"path/filepath"
	"strconv"
)

// Mode selects how the encoder treats the source streams.
type Mode string

const (
	// ModeCopy remuxes the existing streams into HLS segments without
	// re-encoding.
	ModeCopy Mode = "copy"

	// ModeEncode re-encodes to the browser-compatible h264/aac pair.
	ModeEncode Mode = "encode"
)

// Well-known file names inside a job's output directory.
const (
	ManifestName = "playlist.m3u8"
	KeyName      = "key.bin"
	KeyInfoName  = "key.info"
	SegmentExt   = ".ts"
)

// SegmentFilePattern is the ffmpeg segment filename template. Zero padding
// keeps lexicographic order equal to sequence order.
const SegmentFilePattern = "seg_%05d.ts"

var browserVideoCodecs = map[string]bool{
	"h264": true,
}

var browserAudioCodecs = map[string]bool{
	"aac": true,
	"mp3": true,
}

// CanCopy reports whether a source qualifies for remux-without-reencoding.
// Copy mode has observed reliability issues, so it additionally requires the
// operator opt-in flag.
func CanCopy(c Codecs, previewQuality, forceEncode, allowCopy bool) bool {
	if previewQuality || forceEncode || !allowCopy {
		return false
	}
	return browserVideoCodecs[c.Video] && browserAudioCodecs[c.Audio]
}

// CommandSpec is a fully-built external encoder invocation.
type CommandSpec struct {
	Path string
	Args []string
}

// CommandBuilder builds ffmpeg argument sets for segmented, encrypted HLS
// output.
type CommandBuilder struct {
	FFmpegPath     string
	SegmentSeconds int
}

// Build returns the encoder invocation for the given input, output directory
// and mode. The output directory must already contain the key-info file.
func (b *CommandBuilder) Build(input, outDir string, mode Mode, previewQuality bool) CommandSpec {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", input,
	}

	if mode == ModeCopy {
		args = append(args, "-c:v", "copy", "-c:a", "copy")
	} else {
		args = append(args, "-c:v", "libx264")
		if previewQuality {
			args = append(args, "-vf", "scale=-2:480", "-preset", "veryfast", "-crf", "28")
		} else {
			args = append(args, "-preset", "fast", "-crf", "23")
		}
		args = append(args, "-c:a", "aac", "-b:a", "128k")
	}

	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(b.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-hls_key_info_file", filepath.Join(outDir, KeyInfoName),
		"-hls_segment_filename", filepath.Join(outDir, SegmentFilePattern),
		filepath.Join(outDir, ManifestName),
	)

	return CommandSpec{Path: b.FFmpegPath, Args: args}
}
