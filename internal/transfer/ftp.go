package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jlaffaye/ftp"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// FTPClient implements Client over a single FTP control connection.
// The connection is not safe for concurrent commands, so every call holds mu.
type FTPClient struct {
	settings Settings
	localFs  afero.Fs
	throttle *Throttle
	logger   *zap.Logger

	mu   sync.Mutex
	conn *ftp.ServerConn
}

// DialFTP connects and logs in to the FTP server described by settings
func DialFTP(ctx context.Context, settings Settings, localFs afero.Fs, logger *zap.Logger) (*FTPClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "ftp-client"), zap.String("profile", settings.Name))

	addr := settings.Address()
	logger.Info("connecting to FTP server", zap.String("address", addr))

	conn, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(settings.timeout()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	user := settings.Username
	if user == "" {
		user = "anonymous"
	}
	if err := conn.Login(user, settings.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftp login as %s failed: %w", user, err)
	}

	logger.Info("successfully connected to FTP server", zap.String("address", addr))

	return &FTPClient{
		settings: settings,
		localFs:  localFs,
		throttle: NewThrottle(settings.MaxBytesPerSecond),
		logger:   logger,
		conn:     conn,
	}, nil
}

func (c *FTPClient) remote(p string) string {
	return path.Join("/", c.settings.BasePath, p)
}

// TestConnection sends a NOOP on the control connection
func (c *FTPClient) TestConnection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.NoOp(); err != nil {
		return mapFTPError("noop", c.settings.Address(), err)
	}
	return nil
}

// ListFiles lists a remote directory
func (c *FTPClient) ListFiles(ctx context.Context, dir string) ([]RemoteFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	entries, err := c.conn.List(c.remote(dir))
	if err != nil {
		return nil, mapFTPError("list", dir, err)
	}

	result := make([]RemoteFile, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." || e.Type == ftp.EntryTypeLink {
			continue
		}
		result = append(result, RemoteFile{
			Name:    e.Name,
			Path:    path.Join(dir, e.Name),
			Size:    int64(e.Size),
			ModTime: e.Time,
			IsDir:   e.Type == ftp.EntryTypeFolder,
		})
	}
	return result, nil
}

// UploadFile stores localPath on the server through a temporary name
func (c *FTPClient) UploadFile(ctx context.Context, localPath, remotePath string) (int64, error) {
	in, err := c.localFs.Open(localPath)
	if err != nil {
		return 0, wrapOpError("open", localPath, err)
	}
	defer in.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return 0, ErrNotConnected
	}

	target := c.remote(remotePath)
	c.makeDirs(path.Dir(target))

	counter := &countingReader{r: c.throttle.Reader(ctx, in)}
	tempPath := target + TempSuffix
	if err := c.conn.Stor(tempPath, counter); err != nil {
		_ = c.conn.Delete(tempPath)
		return counter.n, mapFTPError("store", remotePath, err)
	}

	_ = c.conn.Delete(target)
	if err := c.conn.Rename(tempPath, target); err != nil {
		_ = c.conn.Delete(tempPath)
		return counter.n, mapFTPError("rename", remotePath, err)
	}

	c.logger.Debug("file uploaded",
		zap.String("local", localPath),
		zap.String("remote", target),
		zap.Int64("bytes", counter.n))
	return counter.n, nil
}

// DownloadFile retrieves remotePath into localPath
func (c *FTPClient) DownloadFile(ctx context.Context, remotePath, localPath string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return 0, ErrNotConnected
	}

	resp, err := c.conn.Retr(c.remote(remotePath))
	if err != nil {
		return 0, mapFTPError("retrieve", remotePath, err)
	}
	defer resp.Close()

	n, err := writeLocal(ctx, c.localFs, localPath, resp, c.throttle)
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
func (c *FTPClient) DeleteFile(ctx context.Context, remotePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.Delete(c.remote(remotePath)); err != nil {
		return mapFTPError("delete", remotePath, err)
	}
	return nil
}

// Close quits the session
func (c *FTPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Quit()
	c.conn = nil
	return err
}

// makeDirs creates each component of dir, ignoring "already exists" replies
func (c *FTPClient) makeDirs(dir string) {
	if dir == "/" || dir == "." {
		return
	}
	current := ""
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		current += "/" + part
		_ = c.conn.MakeDir(current)
	}
}

func mapFTPError(op, target string, err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable {
		return fmt.Errorf("%s %s: %w: %w", op, target, ErrNotFound, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%s %s: %w: %w", op, target, ErrNotConnected, err)
	}
	return fmt.Errorf("%s %s: %w", op, target, err)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// writeLocal writes r to localPath on fs via a temporary file and rename
func writeLocal(ctx context.Context, fs afero.Fs, localPath string, r io.Reader, t *Throttle) (int64, error) {
	if err := fs.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return 0, wrapOpError("mkdir", filepath.Dir(localPath), err)
	}

	tempPath := localPath + TempSuffix
	out, err := fs.Create(tempPath)
	if err != nil {
		return 0, wrapOpError("create", tempPath, err)
	}

	written, err := copyStream(ctx, t, out, r)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = fs.Remove(tempPath)
		return written, fmt.Errorf("failed to copy data to %s: %w", localPath, err)
	}

	_ = fs.Remove(localPath)
	if err := fs.Rename(tempPath, localPath); err != nil {
		_ = fs.Remove(tempPath)
		return written, wrapOpError("rename", localPath, err)
	}
	return written, nil
}
