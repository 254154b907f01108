// Package database provides SQLite persistence with SQLCipher encryption
// for transfer job records.
package database

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mutecomm/go-sqlcipher/v4"
)

//go:embed schema.sql
var schemaSQL string

// SchemaVersion is the schema version this build reads and writes
const SchemaVersion = "1"

// ErrWrongKey is returned when the file exists but cannot be decrypted
// with the given key (or is not a database at all).
var ErrWrongKey = errors.New("database cannot be decrypted with this key")

// DB is an open job database.
type DB struct {
	conn *sql.DB
	path string
}

// Config contains database configuration.
type Config struct {
	Path          string
	EncryptionKey string // SQLCipher key, from the config or the keyring
}

// Open opens the encrypted database at cfg.Path, creating it and its
// schema on first use.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("database encryption key is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma_key=%s&_pragma_cipher_page_size=4096",
		cfg.Path, url.QueryEscape(cfg.EncryptionKey))
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; SaveJobs rewrites the table in a single transaction
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, path: cfg.Path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// migrate applies the schema (idempotent) and checks its version. A wrong
// key makes the very first statement fail.
func (db *DB) migrate() error {
	if _, err := db.conn.Exec(schemaSQL); err != nil {
		if isNotADatabase(err) {
			return fmt.Errorf("%w: %s", ErrWrongKey, db.path)
		}
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	version, err := db.metadata("schema_version")
	if err != nil {
		return err
	}
	if version != SchemaVersion {
		return fmt.Errorf("unsupported schema version %q (expected %s)", version, SchemaVersion)
	}
	return nil
}

func isNotADatabase(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "file is not a database") || strings.Contains(msg, "file is encrypted")
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Transaction executes fn within a transaction, rolling back on error or panic.
func (db *DB) Transaction(fn func(*sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HealthCheck verifies the database is accessible.
func (db *DB) HealthCheck() error {
	return db.conn.Ping()
}

// metadata reads one db_metadata value
func (db *DB) metadata(key string) (string, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM db_metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("metadata %q not found", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read metadata %q: %w", key, err)
	}
	return value, nil
}
