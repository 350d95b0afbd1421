// Package checksum computes content fingerprints used for change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/starford/ansuz/internal/apperr"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString returns the hex-encoded SHA-256 digest of s.
func SumString(s string) string {
	return Sum([]byte(s))
}

// SumWithMeta combines the content digest with a canonical serialization of
// the metadata map, so a category or title change alone produces a new
// fingerprint. encoding/json marshals map keys in sorted order, which makes
// the serialization stable across runs.
func SumWithMeta(data []byte, meta map[string]any) string {
	if len(meta) == 0 {
		return Sum(data)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		// Unencodable metadata participates as its formatted form rather
		// than silently dropping out of the fingerprint.
		metaJSON = []byte(fmt.Sprintf("%v", meta))
	}
	combined := Sum(data) + ":" + Sum(metaJSON)
	return SumString(combined)
}

// SumFile hashes the content of the file at path.
// Returns apperr.ErrNotFound when the file does not exist; other I/O errors
// are propagated unchanged.
func SumFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("checksum: %s: %w", path, apperr.ErrNotFound)
		}
		return "", err
	}
	return Sum(data), nil
}
