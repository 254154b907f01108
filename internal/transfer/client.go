// Package transfer provides the uniform file transfer contract and its
// local, FTP, SFTP and SMB implementations.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a remote or local file does not exist
	ErrNotFound = errors.New("file not found")
	// ErrNotConnected is returned when the session is closed or was dropped
	ErrNotConnected = errors.New("not connected")
	// ErrUnknownProtocol is returned for an unsupported protocol name
	ErrUnknownProtocol = errors.New("unknown protocol")
	// ErrUnknownProfile is returned when a job references a missing connection profile
	ErrUnknownProfile = errors.New("unknown connection profile")
)

// Protocol identifies a transfer backend
type Protocol string

const (
	ProtocolLocal Protocol = "local"
	ProtocolFTP   Protocol = "ftp"
	ProtocolSFTP  Protocol = "sftp"
	ProtocolSMB   Protocol = "smb"
)

// DefaultPort returns the well-known port of the protocol
func (p Protocol) DefaultPort() int {
	switch p {
	case ProtocolFTP:
		return 21
	case ProtocolSFTP:
		return 22
	case ProtocolSMB:
		return 445
	default:
		return 0
	}
}

// RemoteFile contains metadata about a remote file or directory
type RemoteFile struct {
	Name    string    // File or directory name
	Path    string    // Full path on the endpoint
	Size    int64     // Size in bytes (0 for directories)
	ModTime time.Time // Last modification time
	IsDir   bool
}

// Client is the contract every transfer backend implements.
// Local paths are resolved against the factory's local filesystem, remote
// paths against the endpoint (below Settings.BasePath when set).
type Client interface {
	TestConnection(ctx context.Context) error
	ListFiles(ctx context.Context, path string) ([]RemoteFile, error)
	UploadFile(ctx context.Context, localPath, remotePath string) (int64, error)
	DownloadFile(ctx context.Context, remotePath, localPath string) (int64, error)
	DeleteFile(ctx context.Context, remotePath string) error
	Close() error
}

// Settings is an immutable snapshot of a connection profile. Clients keep
// their own copy so profile edits never affect a run in progress.
type Settings struct {
	Name                  string        `json:"name"`
	Protocol              Protocol      `json:"protocol"`
	Host                  string        `json:"host,omitempty"`
	Port                  int           `json:"port,omitempty"`
	Username              string        `json:"username,omitempty"`
	Password              string        `json:"-"`
	CredentialID          string        `json:"credential_id,omitempty"` // keyring entry holding the password
	BasePath              string        `json:"base_path,omitempty"`
	Share                 string        `json:"share,omitempty"`  // SMB only
	Domain                string        `json:"domain,omitempty"` // SMB only
	KnownHostsFile        string        `json:"known_hosts_file,omitempty"`
	InsecureIgnoreHostKey bool          `json:"insecure_ignore_host_key,omitempty"`
	Timeout               time.Duration `json:"timeout,omitempty"`
	MaxBytesPerSecond     int64         `json:"max_bytes_per_second,omitempty"`
}

// Address returns host:port using the protocol default port when unset
func (s Settings) Address() string {
	port := s.Port
	if port == 0 {
		port = s.Protocol.DefaultPort()
	}
	return fmt.Sprintf("%s:%d", s.Host, port)
}

// Validate checks the fields required by the protocol
func (s Settings) Validate() error {
	switch s.Protocol {
	case ProtocolLocal:
		return nil
	case ProtocolFTP, ProtocolSFTP:
		if s.Host == "" {
			return fmt.Errorf("%s profile %q: host cannot be empty", s.Protocol, s.Name)
		}
	case ProtocolSMB:
		if s.Host == "" {
			return fmt.Errorf("smb profile %q: server cannot be empty", s.Name)
		}
		if s.Share == "" {
			return fmt.Errorf("smb profile %q: share cannot be empty", s.Name)
		}
		if s.Username == "" {
			return fmt.Errorf("smb profile %q: username cannot be empty", s.Name)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProtocol, s.Protocol)
	}
	return nil
}

func (s Settings) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 30 * time.Second
	}
	return s.Timeout
}
