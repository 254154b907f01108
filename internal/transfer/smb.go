package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/hirochachacha/go-smb2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// SMBClient handles SMB connections and file operations on one share
type SMBClient struct {
	settings Settings
	localFs  afero.Fs
	throttle *Throttle
	logger   *zap.Logger

	// SMB2 objects
	conn    net.Conn
	session *smb2.Session
	fs      *smb2.Share

	// State
	mu        sync.RWMutex
	connected bool
}

// NewSMBClient creates a new SMB client instance. Call Connect before use.
func NewSMBClient(settings Settings, localFs afero.Fs, logger *zap.Logger) (*SMBClient, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SMBClient{
		settings: settings,
		localFs:  localFs,
		throttle: NewThrottle(settings.MaxBytesPerSecond),
		logger:   logger.With(zap.String("component", "smb"), zap.String("profile", settings.Name)),
	}, nil
}

// Connect establishes a connection to the SMB server and mounts the share
func (c *SMBClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}

	addr := c.settings.Address()
	c.logger.Info("connecting to SMB server",
		zap.String("address", addr),
		zap.String("share", c.settings.Share))

	dialer := &net.Dialer{Timeout: c.settings.timeout()}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     c.settings.Username,
			Password: c.settings.Password,
			Domain:   c.settings.Domain,
		},
	}

	session, err := d.DialContext(ctx, conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SMB session: %w", err)
	}

	share, err := session.Mount(c.settings.Share)
	if err != nil {
		session.Logoff()
		conn.Close()
		return fmt.Errorf("failed to mount share %s: %w", c.settings.Share, err)
	}

	c.conn = conn
	c.session = session
	c.fs = share
	c.connected = true

	c.logger.Info("successfully connected to SMB server",
		zap.String("address", addr),
		zap.String("share", c.settings.Share))

	return nil
}

// share returns the mounted share bound to ctx
func (c *SMBClient) share(ctx context.Context) (*smb2.Share, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return nil, ErrNotConnected
	}
	return c.fs.WithContext(ctx), nil
}

// remote converts p to a share-relative path below BasePath
func (c *SMBClient) remote(p string) string {
	joined := path.Join(c.settings.BasePath, p)
	joined = strings.TrimPrefix(joined, "/")
	if joined == "" || joined == "." {
		return "."
	}
	return joined
}

// TestConnection stats the base directory on the share
func (c *SMBClient) TestConnection(ctx context.Context) error {
	fs, err := c.share(ctx)
	if err != nil {
		return err
	}
	target := c.remote("")
	if _, err := fs.Stat(target); err != nil {
		return mapSMBError("stat", target, err)
	}
	return nil
}

// ListFiles lists files and directories in the specified remote path
func (c *SMBClient) ListFiles(ctx context.Context, dir string) ([]RemoteFile, error) {
	fs, err := c.share(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(c.remote(dir))
	if err != nil {
		return nil, mapSMBError("list", dir, err)
	}

	result := make([]RemoteFile, 0, len(entries))
	for _, info := range entries {
		result = append(result, RemoteFile{
			Name:    info.Name(),
			Path:    path.Join(dir, info.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		})
	}

	c.logger.Debug("remote directory listed",
		zap.String("remote", dir),
		zap.Int("count", len(result)))

	return result, nil
}

// UploadFile uploads a local file to the share.
// Writes to a temporary name first, then renames (SMB rename does not overwrite).
func (c *SMBClient) UploadFile(ctx context.Context, localPath, remotePath string) (int64, error) {
	fs, err := c.share(ctx)
	if err != nil {
		return 0, err
	}

	localFile, err := c.localFs.Open(localPath)
	if err != nil {
		return 0, wrapOpError("open", localPath, err)
	}
	defer localFile.Close()

	localInfo, err := localFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to get local file info: %w", err)
	}
	if localInfo.IsDir() {
		return 0, fmt.Errorf("cannot upload directory: %s", localPath)
	}

	target := c.remote(remotePath)
	if remoteDir := path.Dir(target); remoteDir != "." && remoteDir != "/" {
		_ = fs.MkdirAll(remoteDir, 0755)
	}

	tempPath := target + TempSuffix
	remoteFile, err := fs.Create(tempPath)
	if err != nil {
		return 0, mapSMBError("create", tempPath, err)
	}

	written, err := copyStream(ctx, c.throttle, remoteFile, localFile)
	remoteFile.Close() // Close before rename

	if err != nil {
		fs.Remove(tempPath)
		return written, mapSMBError("write", remotePath, err)
	}

	fs.Remove(target)
	if err := fs.Rename(tempPath, target); err != nil {
		fs.Remove(tempPath)
		return written, mapSMBError("rename", remotePath, err)
	}

	c.logger.Debug("file uploaded",
		zap.String("local", localPath),
		zap.String("remote", target),
		zap.Int64("bytes", written))

	return written, nil
}

// DownloadFile downloads a file from the share to the local filesystem
func (c *SMBClient) DownloadFile(ctx context.Context, remotePath, localPath string) (int64, error) {
	fs, err := c.share(ctx)
	if err != nil {
		return 0, err
	}

	remoteFile, err := fs.Open(c.remote(remotePath))
	if err != nil {
		return 0, mapSMBError("open", remotePath, err)
	}
	defer remoteFile.Close()

	written, err := writeLocal(ctx, c.localFs, localPath, remoteFile, c.throttle)
	if err != nil {
		return written, err
	}

	c.logger.Debug("file downloaded",
		zap.String("remote", remotePath),
		zap.String("local", localPath),
		zap.Int64("bytes", written))

	return written, nil
}

// DeleteFile removes a file from the share
func (c *SMBClient) DeleteFile(ctx context.Context, remotePath string) error {
	fs, err := c.share(ctx)
	if err != nil {
		return err
	}
	if err := fs.Remove(c.remote(remotePath)); err != nil {
		return mapSMBError("delete", remotePath, err)
	}
	return nil
}

// Close unmounts the share and closes the session
func (c *SMBClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	if c.fs != nil {
		if err := c.fs.Umount(); err != nil {
			c.logger.Warn("failed to unmount share", zap.Error(err))
		}
		c.fs = nil
	}
	if c.session != nil {
		if err := c.session.Logoff(); err != nil {
			c.logger.Warn("failed to logoff session", zap.Error(err))
		}
		c.session = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close connection", zap.Error(err))
		}
		c.conn = nil
	}

	c.connected = false
	c.logger.Info("disconnected from SMB server")
	return nil
}

func mapSMBError(op, target string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("%s %s: %w: %w", op, target, ErrNotConnected, err)
	}
	return wrapOpError(op, target, err)
}
