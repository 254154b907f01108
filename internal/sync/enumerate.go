package sync

import (
	"context"
	"iter"
	"path"
	"path/filepath"
	"strings"

	"github.com/juste-un-gars/anemone_transfer/internal/job"
	"github.com/juste-un-gars/anemone_transfer/internal/scanner"
	"github.com/juste-un-gars/anemone_transfer/internal/transfer"
)

// RemoteLister adapts a transfer client to the scanner walk
func RemoteLister(client transfer.Client) scanner.Lister {
	return func(ctx context.Context, dir string) ([]scanner.FileInfo, error) {
		files, err := client.ListFiles(ctx, dir)
		if err != nil {
			return nil, err
		}
		result := make([]scanner.FileInfo, 0, len(files))
		for _, f := range files {
			result = append(result, scanner.FileInfo{
				Path:    f.Path,
				Name:    f.Name,
				Size:    f.Size,
				ModTime: f.ModTime,
				IsDir:   f.IsDir,
				Hidden:  strings.HasPrefix(f.Name, ".") && f.Name != "..",
			})
		}
		return result, nil
	}
}

// sourceFiles returns the enumeration of the job source for its direction
func (o *Orchestrator) sourceFiles(ctx context.Context, def job.Definition, client transfer.Client) iter.Seq2[scanner.FileInfo, error] {
	if def.Direction == job.DirectionDownload {
		return scanner.Walk(ctx, RemoteLister(client), def.SourcePath, def.IncludeSubfolders)
	}
	return scanner.WalkFs(ctx, o.localFs, def.SourcePath, def.IncludeSubfolders)
}

// destinationPath maps a source file to its destination below DestinationPath.
// Remote paths are slash separated, local ones use the OS separator.
func destinationPath(def job.Definition, fi scanner.FileInfo) string {
	if def.Direction == job.DirectionDownload {
		return filepath.Join(def.DestinationPath, filepath.FromSlash(fi.RelPath))
	}
	return path.Join(filepath.ToSlash(def.DestinationPath), fi.RelPath)
}
