// Package output writes rendered artifacts into the destination tree.
//
// Writes are content-addressed: bytes hashing identically to the last
// committed write for the same destination are skipped entirely, keeping
// file timestamps quiet during serve-mode rebuilds.
package output

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Result reports what Write did.
type Result int

const (
	// Written means the destination file now holds the new bytes.
	Written Result = iota
	// Unchanged means the bytes matched the previous hash and no disk
	// write happened.
	Unchanged
)

func (r Result) String() string {
	if r == Written {
		return "written"
	}
	return "unchanged"
}

// HashBytes returns the hex SHA-256 content hash used for no-op write
// detection and graph snapshots.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Writer writes artifacts under a single destination root. Destination
// paths are validated to stay inside the root.
type Writer struct {
	root string
}

// NewWriter creates a writer rooted at the output directory.
func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

// Root returns the destination root.
func (w *Writer) Root() string { return w.root }

// Write stores data at the root-relative destination rel. When the content
// hash equals prevHash the write is skipped and Unchanged is reported. The
// new hash is returned either way.
func (w *Writer) Write(rel string, data []byte, prevHash string) (Result, string, error) {
	hash := HashBytes(data)
	if prevHash != "" && hash == prevHash {
		return Unchanged, hash, nil
	}

	full, err := w.resolve(rel)
	if err != nil {
		return Written, hash, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return Written, hash, fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return Written, hash, fmt.Errorf("write %s: %w", rel, err)
	}
	return Written, hash, nil
}

// Remove deletes the destination file for a removed source. A file that is
// already gone is not an error.
func (w *Writer) Remove(rel string) error {
	full, err := w.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return nil
}

func (w *Writer) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("output path %q escapes output root", rel)
	}
	return filepath.Join(w.root, clean), nil
}
