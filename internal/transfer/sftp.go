package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/pkg/sftp"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPClient implements Client over an SSH connection
type SFTPClient struct {
	settings Settings
	localFs  afero.Fs
	throttle *Throttle
	logger   *zap.Logger

	mu        sync.RWMutex
	sshClient *ssh.Client
	client    *sftp.Client
}

// DialSFTP opens an SSH session authenticated by password and starts the SFTP subsystem
func DialSFTP(ctx context.Context, settings Settings, localFs afero.Fs, logger *zap.Logger) (*SFTPClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "sftp-client"), zap.String("profile", settings.Name))

	hostKeyCallback, err := hostKeyCallback(settings)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            settings.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(settings.Password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         settings.timeout(),
	}

	addr := settings.Address()
	logger.Info("connecting to SFTP server", zap.String("address", addr))

	dialer := &net.Dialer{Timeout: settings.timeout()}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("failed to start sftp subsystem: %w", err)
	}

	logger.Info("successfully connected to SFTP server", zap.String("address", addr))

	return &SFTPClient{
		settings:  settings,
		localFs:   localFs,
		throttle:  NewThrottle(settings.MaxBytesPerSecond),
		logger:    logger,
		sshClient: sshClient,
		client:    client,
	}, nil
}

func hostKeyCallback(settings Settings) (ssh.HostKeyCallback, error) {
	if settings.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := settings.KnownHostsFile
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot locate known_hosts: %w", err)
		}
		file = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts %s: %w", file, err)
	}
	return cb, nil
}

func (c *SFTPClient) session() (*sftp.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

func (c *SFTPClient) remote(p string) string {
	if c.settings.BasePath == "" {
		return p
	}
	return path.Join(c.settings.BasePath, p)
}

// TestConnection stats the base directory
func (c *SFTPClient) TestConnection(ctx context.Context) error {
	client, err := c.session()
	if err != nil {
		return err
	}
	target := c.remote(".")
	if _, err := client.Stat(target); err != nil {
		return mapSFTPError("stat", target, err)
	}
	return nil
}

// ListFiles lists a remote directory
func (c *SFTPClient) ListFiles(ctx context.Context, dir string) ([]RemoteFile, error) {
	client, err := c.session()
	if err != nil {
		return nil, err
	}
	infos, err := client.ReadDir(c.remote(dir))
	if err != nil {
		return nil, mapSFTPError("list", dir, err)
	}

	result := make([]RemoteFile, 0, len(infos))
	for _, info := range infos {
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		result = append(result, RemoteFile{
			Name:    info.Name(),
			Path:    path.Join(dir, info.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		})
	}
	return result, nil
}

// UploadFile writes localPath to a temporary remote file, then renames it
func (c *SFTPClient) UploadFile(ctx context.Context, localPath, remotePath string) (int64, error) {
	client, err := c.session()
	if err != nil {
		return 0, err
	}

	in, err := c.localFs.Open(localPath)
	if err != nil {
		return 0, wrapOpError("open", localPath, err)
	}
	defer in.Close()

	target := c.remote(remotePath)
	if dir := path.Dir(target); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return 0, mapSFTPError("mkdir", dir, err)
		}
	}

	tempPath := target + TempSuffix
	out, err := client.Create(tempPath)
	if err != nil {
		return 0, mapSFTPError("create", tempPath, err)
	}

	written, err := copyStream(ctx, c.throttle, out, in)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = client.Remove(tempPath)
		return written, mapSFTPError("write", remotePath, err)
	}

	if err := client.PosixRename(tempPath, target); err != nil {
		// Servers without the posix-rename extension refuse to overwrite
		_ = client.Remove(target)
		if err := client.Rename(tempPath, target); err != nil {
			_ = client.Remove(tempPath)
			return written, mapSFTPError("rename", remotePath, err)
		}
	}

	c.logger.Debug("file uploaded",
		zap.String("local", localPath),
		zap.String("remote", target),
		zap.Int64("bytes", written))
	return written, nil
}

// DownloadFile copies a remote file to localPath
func (c *SFTPClient) DownloadFile(ctx context.Context, remotePath, localPath string) (int64, error) {
	client, err := c.session()
	if err != nil {
		return 0, err
	}

	in, err := client.Open(c.remote(remotePath))
	if err != nil {
		return 0, mapSFTPError("open", remotePath, err)
	}
	defer in.Close()

	n, err := writeLocal(ctx, c.localFs, localPath, in, c.throttle)
	if err != nil {
		return n, err
	}

	c.logger.Debug("file downloaded",
		zap.String("remote", remotePath),
		zap.String("local", localPath),
		zap.Int64("bytes", n))
	return n, nil
}

// DeleteFile removes a remote file
func (c *SFTPClient) DeleteFile(ctx context.Context, remotePath string) error {
	client, err := c.session()
	if err != nil {
		return err
	}
	if err := client.Remove(c.remote(remotePath)); err != nil {
		return mapSFTPError("delete", remotePath, err)
	}
	return nil
}

// Close ends the SFTP and SSH sessions
func (c *SFTPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			firstErr = err
		}
		c.client = nil
	}
	if c.sshClient != nil {
		if err := c.sshClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.sshClient = nil
	}
	return firstErr
}

func mapSFTPError(op, target string, err error) error {
	if errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%s %s: %w: %w", op, target, ErrNotConnected, err)
	}
	return wrapOpError(op, target, err)
}
