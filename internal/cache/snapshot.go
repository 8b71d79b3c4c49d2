package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	// snapshotVersion is the current snapshot format version
	snapshotVersion = "1.0"
	// snapshotFile is the file name used inside the snapshot directory
	snapshotFile = "cache.json"
	// cacheDirPermissions is the permissions for the cache directory
	cacheDirPermissions = 0755
	// cacheFilePermissions is the permissions for cache files
	cacheFilePermissions = 0644
)

// snapshot is the on-disk representation of a Memory cache
type snapshot struct {
	Version    string    `json:"version"`
	SavedAt    time.Time `json:"saved_at"`
	EntryCount int       `json:"entry_count"`
	Entries    []Entry   `json:"entries"`
}

// Disk reads and writes cache snapshots in a directory
type Disk struct {
	baseDir string
	logger  *slog.Logger
}

// NewDisk creates a snapshot store and ensures the directory exists
func NewDisk(baseDir string, logger *slog.Logger) (*Disk, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("cache base directory cannot be empty")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &Disk{
		baseDir: baseDir,
		logger:  logger,
	}

	if err := d.ensureDir(); err != nil {
		return nil, fmt.Errorf("failed to ensure cache directory: %w", err)
	}

	return d, nil
}

// ensureDir creates the cache directory if it doesn't exist
func (d *Disk) ensureDir() error {
	return os.MkdirAll(d.baseDir, cacheDirPermissions)
}

// Path returns the snapshot file path
func (d *Disk) Path() string {
	return filepath.Join(d.baseDir, snapshotFile)
}

// Save persists entries with an atomic temp file + rename
func (d *Disk) Save(entries []Entry) error {
	snap := &snapshot{
		Version:    snapshotVersion,
		SavedAt:    time.Now(),
		EntryCount: len(entries),
		Entries:    entries,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := d.Path()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, cacheFilePermissions); err != nil {
		return fmt.Errorf("failed to write temp snapshot file: %w", err)
	}

	tempFile, err := os.Open(tempPath)
	if err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to open temp snapshot file for sync: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp snapshot file: %w", err)
	}
	tempFile.Close()

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp snapshot file: %w", err)
	}

	d.logger.Debug("Cache snapshot saved", "path", path, "entries", len(entries))
	return nil
}

// Load reads the snapshot. A missing file returns os.ErrNotExist.
func (d *Disk) Load() ([]Entry, error) {
	path := d.Path()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	if err := validateSnapshot(&snap); err != nil {
		return nil, fmt.Errorf("snapshot validation failed: %w", err)
	}

	d.logger.Debug("Cache snapshot loaded", "path", path, "entries", len(snap.Entries), "saved_at", snap.SavedAt)
	return snap.Entries, nil
}

// Clear removes the snapshot file (idempotent)
func (d *Disk) Clear() error {
	if err := os.Remove(d.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot file: %w", err)
	}
	return nil
}

// validateSnapshot validates the structure of a decoded snapshot
func validateSnapshot(snap *snapshot) error {
	if snap.Version != snapshotVersion {
		return fmt.Errorf("snapshot version mismatch: got %s, expected %s", snap.Version, snapshotVersion)
	}
	if snap.EntryCount != len(snap.Entries) {
		return fmt.Errorf("entry count mismatch: metadata says %d, actual %d", snap.EntryCount, len(snap.Entries))
	}
	if snap.SavedAt.After(time.Now()) {
		return fmt.Errorf("snapshot timestamp is in the future")
	}
	return nil
}
