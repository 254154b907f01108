package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// TempSuffix is appended to destination files while they are being written.
// The final name appears only after a complete copy (rename).
const TempSuffix = ".anemone-part"

// LocalClient transfers between two filesystems, typically a local
// directory and a mounted share. The endpoint is rooted at Settings.BasePath.
type LocalClient struct {
	settings Settings
	localFs  afero.Fs
	remoteFs afero.Fs
	throttle *Throttle
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewLocalClient creates a client whose endpoint is endpointFs below settings.BasePath
func NewLocalClient(settings Settings, localFs, endpointFs afero.Fs, logger *zap.Logger) *LocalClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	remoteFs := endpointFs
	if settings.BasePath != "" {
		remoteFs = afero.NewBasePathFs(endpointFs, settings.BasePath)
	}
	return &LocalClient{
		settings: settings,
		localFs:  localFs,
		remoteFs: remoteFs,
		throttle: NewThrottle(settings.MaxBytesPerSecond),
		logger:   logger.With(zap.String("component", "local-client"), zap.String("profile", settings.Name)),
	}
}

func (c *LocalClient) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrNotConnected
	}
	return nil
}

// TestConnection checks that the endpoint root is a reachable directory
func (c *LocalClient) TestConnection(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	info, err := c.remoteFs.Stat(string(filepath.Separator))
	if err != nil {
		return fmt.Errorf("endpoint %s unavailable: %w", c.settings.BasePath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("endpoint %s is not a directory", c.settings.BasePath)
	}
	return nil
}

// ListFiles lists the entries of a directory on the endpoint
func (c *LocalClient) ListFiles(ctx context.Context, dir string) ([]RemoteFile, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(c.remoteFs, dir)
	if err != nil {
		return nil, wrapOpError("list", dir, err)
	}

	result := make([]RemoteFile, 0, len(infos))
	for _, info := range infos {
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		result = append(result, RemoteFile{
			Name:    info.Name(),
			Path:    filepath.Join(dir, info.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		})
	}
	return result, nil
}

// UploadFile copies localPath to remotePath on the endpoint
func (c *LocalClient) UploadFile(ctx context.Context, localPath, remotePath string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	n, err := c.copyFile(ctx, c.localFs, localPath, c.remoteFs, remotePath)
	if err != nil {
		return n, err
	}
	c.logger.Debug("file uploaded",
		zap.String("local", localPath),
		zap.String("remote", remotePath),
		zap.Int64("bytes", n))
	return n, nil
}

// DownloadFile copies remotePath on the endpoint to localPath
func (c *LocalClient) DownloadFile(ctx context.Context, remotePath, localPath string) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	n, err := c.copyFile(ctx, c.remoteFs, remotePath, c.localFs, localPath)
	if err != nil {
		return n, err
	}
	c.logger.Debug("file downloaded",
		zap.String("remote", remotePath),
		zap.String("local", localPath),
		zap.Int64("bytes", n))
	return n, nil
}

// DeleteFile removes a file on the endpoint
func (c *LocalClient) DeleteFile(ctx context.Context, remotePath string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.remoteFs.Remove(remotePath); err != nil {
		return wrapOpError("delete", remotePath, err)
	}
	return nil
}

// Close releases the client; further calls return ErrNotConnected
func (c *LocalClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *LocalClient) copyFile(ctx context.Context, srcFs afero.Fs, src string, dstFs afero.Fs, dst string) (int64, error) {
	in, err := srcFs.Open(src)
	if err != nil {
		return 0, wrapOpError("open", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, wrapOpError("stat", src, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("cannot transfer directory: %s", src)
	}

	return writeLocal(ctx, dstFs, dst, in, c.throttle)
}

// wrapOpError adds context and maps missing files to ErrNotFound
func wrapOpError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %s: %w: %w", op, path, ErrNotFound, err)
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}
