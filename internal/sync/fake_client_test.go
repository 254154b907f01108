package sync

import (
	"context"
	"errors"
	"path"
	"strings"
	gosync "sync"

	"github.com/juste-un-gars/anemone_transfer/internal/transfer"
)

// fakeClient is an in-memory endpoint. Errors queued in failures are
// returned, one per call, before the operation is allowed to succeed.
type fakeClient struct {
	mu         gosync.Mutex
	remote     map[string][]byte
	failures   map[string][]error
	deleteErr  error
	testErr    error
	calls      map[string]int
	closed     bool
	downloaded map[string]string
	// listings overrides the entries returned for a directory
	listings map[string][]transfer.RemoteFile
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		remote:     make(map[string][]byte),
		failures:   make(map[string][]error),
		calls:      make(map[string]int),
		downloaded: make(map[string]string),
	}
}

func (c *fakeClient) popFailure(key string) error {
	c.calls[key]++
	errs := c.failures[key]
	if len(errs) == 0 {
		return nil
	}
	c.failures[key] = errs[1:]
	return errs[0]
}

func (c *fakeClient) TestConnection(ctx context.Context) error {
	return c.testErr
}

func (c *fakeClient) ListFiles(ctx context.Context, dir string) ([]transfer.RemoteFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entries, ok := c.listings[dir]; ok {
		return entries, nil
	}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	seen := make(map[string]bool)
	var out []transfer.RemoteFile
	for p, data := range c.remote {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		name, _, nested := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		f := transfer.RemoteFile{Name: name, Path: path.Join(dir, name), IsDir: nested}
		if !nested {
			f.Size = int64(len(data))
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, transfer.ErrNotFound
	}
	return out, nil
}

func (c *fakeClient) UploadFile(ctx context.Context, localPath, remotePath string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.popFailure(localPath); err != nil {
		return 0, err
	}
	c.remote[remotePath] = []byte(localPath)
	return int64(len(localPath)), nil
}

func (c *fakeClient) DownloadFile(ctx context.Context, remotePath, localPath string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.popFailure(remotePath); err != nil {
		return 0, err
	}
	data, ok := c.remote[remotePath]
	if !ok {
		return 0, transfer.ErrNotFound
	}
	c.downloaded[remotePath] = localPath
	return int64(len(data)), nil
}

func (c *fakeClient) DeleteFile(ctx context.Context, remotePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	if _, ok := c.remote[remotePath]; !ok {
		return transfer.ErrNotFound
	}
	delete(c.remote, remotePath)
	return nil
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

type fakeFactory struct {
	client  *fakeClient
	openErr error
	opened  int
}

func (f *fakeFactory) Open(ctx context.Context, name string) (transfer.Client, error) {
	f.opened++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.client, nil
}

var errTimeout = errors.New("i/o timeout")
