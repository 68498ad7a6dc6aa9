// Package hash computes the content identity of source documents.
package hash

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// Bytes computes SHA-256 of content and returns hex string.
func Bytes(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

// Reader streams r through SHA-256 and returns the hex digest.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// File hashes the content of the file at path. Only the bytes count; name and
// modification time do not.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("read source %s: %w", path, err)
	}
	return sum, nil
}
