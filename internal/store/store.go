// Package store persists job records so jobs survive a restart.
package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

// FormatVersion is the version written in every snapshot
const FormatVersion = 1

// Backends
const (
	BackendFile      = "file"
	BackendSQLCipher = "sqlcipher"
)

var (
	// ErrCorruptStore is returned when the store as a whole cannot be read.
	// Individual unreadable records are skipped instead.
	ErrCorruptStore = errors.New("job store is corrupt")
	// ErrUnknownBackend is returned by Open for an unsupported backend
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Snapshot is the full persisted state of the registry
type Snapshot struct {
	NextID  int64
	SavedAt time.Time
	Records []job.Record

	// Skipped counts records that could not be decoded on load
	Skipped int
}

// Store saves and loads snapshots. SaveAll replaces the stored state atomically.
type Store interface {
	Load() (Snapshot, error)
	SaveAll(s Snapshot) error
	Close() error
}

// Options selects and configures a backend
type Options struct {
	Backend         string
	Path            string
	EncryptionKey   string
	KeyCredentialID string
	KeyringService  string
}

// Open creates the configured store
func Open(opts Options, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch opts.Backend {
	case "", BackendFile:
		path := opts.Path
		if path == "" {
			path = "jobs.json"
		}
		return NewFileStore(afero.NewOsFs(), path, logger), nil

	case BackendSQLCipher:
		key, err := ResolveKey(opts.EncryptionKey, opts.KeyringService, opts.KeyCredentialID, logger)
		if err != nil {
			return nil, err
		}
		path := opts.Path
		if path == "" {
			path = filepath.Join(".", "anemone_transfer.db")
		}
		return OpenSQLStore(path, key, logger)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
