package sync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/juste-un-gars/anemone_transfer/internal/transfer"
)

// Common orchestration errors
var (
	ErrNoClientFactory = errors.New("no transfer client factory configured")
	ErrRunAborted      = errors.New("run was aborted")
)

// ErrorCategory classifies error types
type ErrorCategory string

const (
	// ErrorCategoryNetwork indicates network-related errors
	ErrorCategoryNetwork ErrorCategory = "network"
	// ErrorCategoryNotFound indicates a missing source or destination
	ErrorCategoryNotFound ErrorCategory = "not_found"
	// ErrorCategoryFileSystem indicates filesystem errors
	ErrorCategoryFileSystem ErrorCategory = "filesystem"
	// ErrorCategoryPermission indicates permission errors
	ErrorCategoryPermission ErrorCategory = "permission"
	// ErrorCategoryCancelled indicates the run context ended
	ErrorCategoryCancelled ErrorCategory = "cancelled"
	// ErrorCategoryUnknown indicates unknown error type
	ErrorCategoryUnknown ErrorCategory = "unknown"
)

// ClassifyError analyzes an error and returns its category and whether it's retryable.
// Only transient network and I/O conditions are retryable.
func ClassifyError(err error) (ErrorCategory, bool) {
	if err == nil {
		return ErrorCategoryUnknown, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryCancelled, false
	}

	// Checked before network: a missing file behind a flaky link is still missing
	if errors.Is(err, transfer.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return ErrorCategoryNotFound, false
	}

	if IsNetworkError(err) {
		return ErrorCategoryNetwork, true
	}

	if IsPermissionError(err) {
		return ErrorCategoryPermission, false
	}

	if IsTransientFileSystemError(err) {
		return ErrorCategoryFileSystem, true
	}

	return ErrorCategoryUnknown, false
}

// IsNetworkError returns true if the error is network-related
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, transfer.ErrNotConnected) {
		return true
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return true
	}

	// syscall.Errno also satisfies net.Error, so only trust Timeout()
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	return containsAny(err.Error(),
		"connection refused",
		"connection reset",
		"connection timeout",
		"timeout",
		"timed out",
		"broken pipe",
		"dial tcp",
		"no route to host",
		"host is down",
		"network is unreachable",
	)
}

// IsPermissionError returns true if the error is permission-related
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) {
		return true
	}

	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return true
	}

	return containsAny(err.Error(),
		"permission denied",
		"access denied",
		"access is denied",
		"insufficient permissions",
	)
}

// IsTransientFileSystemError returns true if the filesystem error is transient
func IsTransientFileSystemError(err error) bool {
	if err == nil {
		return false
	}

	return containsAny(err.Error(),
		"file is locked",
		"used by another process",
		"resource temporarily unavailable",
		"server busy",
		"temporarily unavailable",
	)
}

// IsTransientError returns true if the error is transient and should be retried
func IsTransientError(err error) bool {
	_, retryable := ClassifyError(err)
	return retryable
}

// WrapTransferError wraps an error with file and operation context
func WrapTransferError(err error, filePath, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s failed for %s: %w", operation, filePath, err)
}

func containsAny(msg string, patterns ...string) bool {
	msg = strings.ToLower(msg)
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
