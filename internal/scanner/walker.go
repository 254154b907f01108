package scanner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Lister returns the entries of one directory. Entries carry Path and the
// metadata fields; RelPath is filled in by the walk.
type Lister func(ctx context.Context, dir string) ([]FileInfo, error)

// Walk lazily enumerates the regular files under root. Each call starts a
// fresh traversal, so a sequence can be ranged over again to restart.
//
// An unreadable root yields a single error wrapping ErrRootUnavailable and
// ends the walk. Unreadable subdirectories yield an error and the walk goes on.
// Directories are only descended into when recursive is set.
func Walk(ctx context.Context, list Lister, root string, recursive bool) iter.Seq2[FileInfo, error] {
	return func(yield func(FileInfo, error) bool) {
		entries, err := list(ctx, root)
		if err != nil {
			yield(FileInfo{Path: root}, &ScanError{
				Path:      root,
				Operation: "list",
				Err:       fmt.Errorf("%w: %w", ErrRootUnavailable, err),
			})
			return
		}
		walkEntries(ctx, list, entries, "", recursive, yield)
	}
}

func walkEntries(ctx context.Context, list Lister, entries []FileInfo, rel string, recursive bool, yield func(FileInfo, error) bool) bool {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			yield(FileInfo{}, err)
			return false
		}

		if e.Name == "." || e.Name == ".." {
			continue
		}
		e.RelPath = path.Join(rel, e.Name)
		if strings.ContainsRune(e.Name, '/') || !filepath.IsLocal(filepath.FromSlash(e.RelPath)) {
			if !yield(e, &ScanError{Path: e.Path, Operation: "validate", Err: fmt.Errorf("%w: %q", ErrUnsafePath, e.Name)}) {
				return false
			}
			continue
		}
		if !e.IsDir {
			if !yield(e, nil) {
				return false
			}
			continue
		}
		if !recursive {
			continue
		}

		children, err := list(ctx, e.Path)
		if err != nil {
			if !yield(e, &ScanError{Path: e.Path, Operation: "list", Err: err}) {
				return false
			}
			continue
		}
		if !walkEntries(ctx, list, children, e.RelPath, recursive, yield) {
			return false
		}
	}
	return true
}

// FsLister lists directories of an afero filesystem. Symlinks are skipped.
func FsLister(fs afero.Fs) Lister {
	return func(ctx context.Context, dir string) ([]FileInfo, error) {
		infos, err := afero.ReadDir(fs, dir)
		if err != nil {
			switch {
			case errors.Is(err, os.ErrNotExist):
				return nil, WrapError(ErrFileNotFound, "directory does not exist: %s", dir)
			case errors.Is(err, os.ErrPermission):
				return nil, WrapError(ErrAccessDenied, "cannot access directory: %s", dir)
			}
			return nil, WrapError(err, "read directory %s", dir)
		}

		result := make([]FileInfo, 0, len(infos))
		for _, info := range infos {
			if info.Mode()&os.ModeSymlink != 0 {
				continue
			}
			result = append(result, NewFileInfo(filepath.Join(dir, info.Name()), "", info))
		}
		return result, nil
	}
}

// WalkFs walks a local (afero) directory tree
func WalkFs(ctx context.Context, fs afero.Fs, root string, recursive bool) iter.Seq2[FileInfo, error] {
	return Walk(ctx, FsLister(fs), root, recursive)
}
