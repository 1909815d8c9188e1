package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vod-server/internal/transcode"
)

func TestSynthesizeManifest_minimumSegments(t *testing.T) {
	env := newTestEngine(t, Config{MinReadySegments: 3, SegmentSeconds: 4}, unknownCodecs())
	dir := t.TempDir()
	writeSegments(t, dir, 3)

	m, err := env.eng.SynthesizeManifest(dir, "tok123")
	if err != nil {
		t.Fatalf("SynthesizeManifest: %v", err)
	}

	if !strings.HasPrefix(m, "#EXTM3U\n") {
		t.Errorf("manifest must start with #EXTM3U: %q", m)
	}
	if !strings.HasSuffix(m, "#EXT-X-ENDLIST\n") {
		t.Errorf("manifest must end with the terminal end marker: %q", m)
	}
	if !strings.Contains(m, "#EXT-X-TARGETDURATION:4\n") {
		t.Errorf("expected target duration 4: %q", m)
	}
	if !strings.Contains(m, "#EXT-X-PLAYLIST-TYPE:VOD\n") {
		t.Errorf("expected VOD playlist type: %q", m)
	}

	// Exactly the three segments, in ascending order.
	i0 := strings.Index(m, "seg_00000.ts")
	i1 := strings.Index(m, "seg_00001.ts")
	i2 := strings.Index(m, "seg_00002.ts")
	if i0 < 0 || i1 < 0 || i2 < 0 || !(i0 < i1 && i1 < i2) {
		t.Errorf("segments missing or out of order: %q", m)
	}
	if got := strings.Count(m, "#EXTINF"); got != 3 {
		t.Errorf("expected 3 entries, got %d", got)
	}
}

func TestSynthesizeManifest_notReady(t *testing.T) {
	env := newTestEngine(t, Config{MinReadySegments: 3}, unknownCodecs())
	dir := t.TempDir()
	writeSegments(t, dir, 2)

	if _, err := env.eng.SynthesizeManifest(dir, "tok123"); err != ErrNotReady {
		t.Errorf("expected ErrNotReady below the minimum, got %v", err)
	}
}

func TestSynthesizeManifest_finalizedShortTitle(t *testing.T) {
	env := newTestEngine(t, Config{MinReadySegments: 3}, unknownCodecs())
	dir := t.TempDir()
	writeSegments(t, dir, 1)

	// The encoder finished: one segment is all this title has.
	if err := os.WriteFile(filepath.Join(dir, transcode.ManifestName), []byte("#EXTM3U\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	m, err := env.eng.SynthesizeManifest(dir, "tok123")
	if err != nil {
		t.Fatalf("finalized output below the minimum must still synthesize: %v", err)
	}
	if !strings.Contains(m, "seg_00000.ts") {
		t.Errorf("expected the single segment listed: %q", m)
	}
}

func TestSynthesizeManifest_keyDirective(t *testing.T) {
	env := newTestEngine(t, Config{MinReadySegments: 1}, unknownCodecs())
	dir := t.TempDir()
	writeSegments(t, dir, 1)
	if err := transcode.EnsureKey(dir, transcode.KeyName); err != nil {
		t.Fatalf("EnsureKey: %v", err)
	}

	m, err := env.eng.SynthesizeManifest(dir, "tok123")
	if err != nil {
		t.Fatalf("SynthesizeManifest: %v", err)
	}

	iv, err := transcode.KeyIV(dir)
	if err != nil {
		t.Fatalf("KeyIV: %v", err)
	}
	want := `#EXT-X-KEY:METHOD=AES-128,URI="/hlskey/tok123/key.bin",IV=0x` + iv
	if !strings.Contains(m, want) {
		t.Errorf("expected key directive %q in manifest: %q", want, m)
	}
}

func TestSynthesizeManifest_ignoresForeignFiles(t *testing.T) {
	env := newTestEngine(t, Config{MinReadySegments: 1}, unknownCodecs())
	dir := t.TempDir()
	writeSegments(t, dir, 1)
	for _, name := range []string{"seg_1.ts", "notes.txt", "seg_00000.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	m, err := env.eng.SynthesizeManifest(dir, "tok123")
	if err != nil {
		t.Fatalf("SynthesizeManifest: %v", err)
	}
	if got := strings.Count(m, "#EXTINF"); got != 1 {
		t.Errorf("only canonical segment names belong in the manifest, got %d entries: %q", got, m)
	}
}
