package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Fingerprint returns the hex SHA-256 digest of r's content.
func Fingerprint(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FingerprintFile hashes the file at path.
func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path) //#nosec G304 -- path comes from a discovery source
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Fingerprint(f)
}

// IsImage sniffs the file content and reports whether it is a raster image
// an engine can decode.
func IsImage(path string) (bool, string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false, "", fmt.Errorf("detect type of %s: %w", path, err)
	}
	name := mt.String()
	return isRasterImage(name), name, nil
}

func isRasterImage(mime string) bool {
	return strings.HasPrefix(mime, "image/") && !strings.HasPrefix(mime, "image/svg")
}
