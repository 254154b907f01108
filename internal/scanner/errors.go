// Package scanner enumerates transfer sources and decides which files a job transfers.
package scanner

import (
	"errors"
	"fmt"
)

// Common error types
var (
	ErrAccessDenied    = errors.New("access denied")
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidPattern  = errors.New("invalid exclusion pattern")
	ErrRootUnavailable = errors.New("source root unavailable")
	ErrUnsafePath      = errors.New("entry name escapes the source tree")
)

// ScanError represents an error during enumeration with context
type ScanError struct {
	Path      string // Directory or file where the error occurred
	Operation string // list, stat
	Err       error
}

// Error implements the error interface
func (e *ScanError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *ScanError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with additional context
func WrapError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, err)
}
