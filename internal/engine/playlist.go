package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"vod-server/internal/transcode"
)

// segmentNameRe matches the zero-padded segment files the encoder writes.
// Zero padding makes lexicographic order equal sequence order.
var segmentNameRe = regexp.MustCompile(`^seg_\d{5}\.ts$`)

// listSegments returns the segment file names in an output directory, in
// sequence order.
func listSegments(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var segs []string
	for _, ent := range entries {
		if !ent.IsDir() && segmentNameRe.MatchString(ent.Name()) {
			segs = append(segs, ent.Name())
		}
	}
	sort.Strings(segs)
	return segs
}

func manifestOnDisk(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, transcode.ManifestName))
	return err == nil
}

// readyOnDisk reports whether an output directory is playable: either the
// encoder finalized its manifest, or enough segments exist to synthesize one.
func readyOnDisk(dir string, minReady int) bool {
	if manifestOnDisk(dir) {
		return true
	}
	return len(listSegments(dir)) >= minReady
}

// SynthesizeManifest builds a complete, seekable VOD manifest from whatever
// segments currently exist in dir, with the key directive pointing at the
// requesting session's key URL. Viewers get a fully seekable manifest before
// the job finishes; the price is that every entry, including the (likely
// shorter) final segment, is listed at the nominal segment duration.
func (e *Engine) SynthesizeManifest(dir, token string) (string, error) {
	segs := listSegments(dir)

	// A finalized on-disk manifest means the encoder is done; short titles
	// may legitimately end below the minimum-ready count.
	if len(segs) < e.cfg.MinReadySegments && !manifestOnDisk(dir) {
		return "", ErrNotReady
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", e.cfg.SegmentSeconds)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")

	if _, err := os.Stat(filepath.Join(dir, transcode.KeyName)); err == nil {
		iv, err := transcode.KeyIV(dir)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "#EXT-X-KEY:METHOD=AES-128,URI=\"/hlskey/%s/%s\",IV=0x%s\n",
			token, transcode.KeyName, iv)
	}

	for _, seg := range segs {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", float64(e.cfg.SegmentSeconds))
		b.WriteString(seg)
		b.WriteString("\n")
	}

	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String(), nil
}
