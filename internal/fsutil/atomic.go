// Package fsutil provides crash-safe file persistence helpers shared by the
// registry, checkpoint, and cache stores.
package fsutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// OwnerOnly is the permission mode for state files that may embed paper
// metadata or run details. Readable and writable by the owning user only.
const OwnerOnly os.FileMode = 0o600

// WriteFileAtomic writes data to path so that readers never observe a
// partially written file. The data goes to a temp file in the same directory,
// is flushed to disk, chmodded to perm, and renamed over the destination.
// The same-directory temp file keeps the rename on one filesystem, which is
// what makes it atomic.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// From here on any failure must remove the temp file so retries never
	// accumulate orphans.
	_, writeErr := tmpFile.Write(data)
	if writeErr != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", writeErr)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// WriteJSONAtomic marshals v as indented JSON and writes it atomically to
// path with owner-only permissions.
func WriteJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	return WriteFileAtomic(path, data, OwnerOnly)
}

// ReadJSON reads path and unmarshals it into v. Callers distinguish a
// missing file (os.IsNotExist) from corrupt content (json errors).
func ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	return nil
}

// QuarantineCorrupt moves a corrupt state file aside to "<path>.backup" so a
// fresh file can take its place. The previous backup, if any, is replaced.
// Returns the backup path.
func QuarantineCorrupt(path string) (string, error) {
	backupPath := path + ".backup"
	if err := os.Rename(path, backupPath); err != nil {
		return "", fmt.Errorf("failed to move corrupt file aside: %w", err)
	}

	return backupPath, nil
}
