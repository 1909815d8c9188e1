package transcode

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const keyBytes = 16 // AES-128, the only method HLS clients support universally

// EnsureKey generates the symmetric key and key-info file for an output
// directory if they do not exist yet. The key is generated once per directory
// and lives exactly as long as it does. keyURI is the URI ffmpeg writes into
// its own playlist; served manifests are synthesized per session and carry
// their own key URI, so a relative placeholder is fine here.
func EnsureKey(outDir, keyURI string) error {
	keyPath := filepath.Join(outDir, KeyName)
	if _, err := os.Stat(keyPath); err == nil {
		return nil
	}

	key := make([]byte, keyBytes)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := os.WriteFile(keyPath, key, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}

	iv := make([]byte, keyBytes)
	if _, err := rand.Read(iv); err != nil {
		return fmt.Errorf("generate iv: %w", err)
	}

	// ffmpeg key-info format: key URI, key file path, IV (hex).
	info := keyURI + "\n" + keyPath + "\n" + hex.EncodeToString(iv) + "\n"
	if err := os.WriteFile(filepath.Join(outDir, KeyInfoName), []byte(info), 0o600); err != nil {
		return fmt.Errorf("write key info: %w", err)
	}
	return nil
}

// KeyIV returns the hex IV recorded in an output directory's key-info file.
// Synthesized manifests must carry the same IV the encoder encrypted with.
func KeyIV(outDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(outDir, KeyInfoName))
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 3 {
		return "", fmt.Errorf("malformed key info in %s", outDir)
	}
	return strings.TrimSpace(lines[2]), nil
}
