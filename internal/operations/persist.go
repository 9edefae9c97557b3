package operations

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// load reads the snapshot at path. A missing or unreadable snapshot yields
// an empty map and a warning; it never fails construction.
func load(path string, logger *zap.Logger) map[string]*Record {
	records := make(map[string]*Record)
	if path == "" {
		return records
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("operation history not found, starting empty", zap.String("path", path))
		} else {
			logger.Warn("failed to read operation history, starting empty", zap.String("path", path), zap.Error(err))
		}
		return records
	}

	if err := json.Unmarshal(data, &records); err != nil {
		logger.Warn("corrupt operation history, starting empty", zap.String("path", path), zap.Error(err))
		return make(map[string]*Record)
	}
	if records == nil {
		return make(map[string]*Record)
	}

	for id, rec := range records {
		if rec == nil || rec.OperationID != id || !rec.Status.Valid() {
			logger.Warn("dropping malformed operation record", zap.String("operation_id", id))
			delete(records, id)
			continue
		}
		if rec.Metadata == nil {
			rec.Metadata = map[string]any{}
		}
	}
	return records
}

// writeSnapshot atomically replaces path with the serialized records.
func writeSnapshot(path string, records map[string]*Record) error {
	start := time.Now()
	defer func() { PersistDuration.Observe(time.Since(start).Seconds()) }()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal operations: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	// CreateTemp opens with 0600.
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write operations: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync operations: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close operations: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize operations: %w", err)
	}
	return nil
}
