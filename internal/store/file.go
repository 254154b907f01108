package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

// envelope is the on-disk layout of a FileStore
type envelope struct {
	Version int               `json:"version"`
	NextID  int64             `json:"next_id"`
	SavedAt time.Time         `json:"saved_at"`
	Jobs    []json.RawMessage `json:"jobs"`
}

// FileStore keeps the snapshot in a single JSON file. Writes go to a
// temporary file that is renamed over the previous one.
type FileStore struct {
	fs     afero.Fs
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

// NewFileStore creates a store backed by path on fs
func NewFileStore(fs afero.Fs, path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		fs:     fs,
		path:   path,
		logger: logger.With(zap.String("component", "file-store"), zap.String("path", path)),
	}
}

// Load reads the snapshot. A missing file is an empty snapshot.
func (s *FileStore) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("no job store yet, starting empty")
			return Snapshot{NextID: 1}, nil
		}
		return Snapshot{}, fmt.Errorf("read job store: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if env.Version > FormatVersion {
		return Snapshot{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptStore, env.Version)
	}

	snap := Snapshot{
		NextID:  env.NextID,
		SavedAt: env.SavedAt,
		Records: make([]job.Record, 0, len(env.Jobs)),
	}
	for i, raw := range env.Jobs {
		var rec job.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			snap.Skipped++
			s.logger.Warn("skipping unreadable job record", zap.Int("index", i), zap.Error(err))
			continue
		}
		snap.Records = append(snap.Records, rec)
	}
	if snap.NextID < 1 {
		snap.NextID = 1
	}

	s.logger.Debug("job store loaded",
		zap.Int("records", len(snap.Records)),
		zap.Int("skipped", snap.Skipped))
	return snap, nil
}

// SaveAll replaces the file with snap
func (s *FileStore) SaveAll(snap Snapshot) error {
	env := envelope{
		Version: FormatVersion,
		NextID:  snap.NextID,
		SavedAt: snap.SavedAt,
		Jobs:    make([]json.RawMessage, 0, len(snap.Records)),
	}
	if env.SavedAt.IsZero() {
		env.SavedAt = time.Now()
	}
	for _, rec := range snap.Records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode job %d: %w", rec.Definition.ID, err)
		}
		env.Jobs = append(env.Jobs, raw)
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := s.writeSynced(tmp, data); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write job store: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace job store: %w", err)
	}
	return nil
}

// writeSynced writes data to name and flushes it to disk, so the rename
// that follows never exposes a partially written file after a crash.
func (s *FileStore) writeSynced(name string, data []byte) error {
	f, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close implements Store
func (s *FileStore) Close() error {
	return nil
}
