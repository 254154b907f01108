package store

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/database"
)

// SQLStore keeps job records in the encrypted SQLCipher database
type SQLStore struct {
	db     *database.DB
	logger *zap.Logger
	mu     sync.Mutex
}

// OpenSQLStore opens (or creates) the database at path
func OpenSQLStore(path, key string, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := database.Open(database.Config{Path: path, EncryptionKey: key})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	return &SQLStore{
		db:     db,
		logger: logger.With(zap.String("component", "sql-store"), zap.String("path", path)),
	}, nil
}

// Load implements Store
func (s *SQLStore) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, skipped, err := s.db.LoadJobs()
	if err != nil {
		return Snapshot{}, err
	}
	if skipped > 0 {
		s.logger.Warn("skipped unreadable job rows", zap.Int("skipped", skipped))
	}
	nextID, err := s.db.NextJobID()
	if err != nil {
		s.logger.Warn("cannot read job id counter, deriving it from records", zap.Error(err))
		nextID = 1
	}
	for _, rec := range records {
		if rec.Definition.ID >= nextID {
			nextID = rec.Definition.ID + 1
		}
	}
	return Snapshot{NextID: nextID, Records: records, Skipped: skipped}, nil
}

// SaveAll implements Store
func (s *SQLStore) SaveAll(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if err := s.db.SaveJobs(snap.NextID, snap.Records); err != nil {
		return err
	}
	s.logger.Debug("jobs saved", zap.Int("records", len(snap.Records)), zap.Duration("took", time.Since(start)))
	return nil
}

// Close implements Store
func (s *SQLStore) Close() error {
	return s.db.Close()
}
