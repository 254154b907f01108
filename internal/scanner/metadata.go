package scanner

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"
)

// FileInfo describes a candidate file of a transfer source
type FileInfo struct {
	Path     string    // Full path as understood by the source (local or remote)
	RelPath  string    // Slash separated path relative to the enumeration root
	Name     string    // Base name
	Size     int64     // Size in bytes
	ModTime  time.Time // Modification time
	IsDir    bool
	Hidden   bool
	System   bool
	ReadOnly bool
}

// NewFileInfo builds a FileInfo from an os.FileInfo found at fullPath
func NewFileInfo(fullPath, relPath string, info os.FileInfo) FileInfo {
	hidden, system := platformAttributes(info)
	return FileInfo{
		Path:     fullPath,
		RelPath:  relPath,
		Name:     info.Name(),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		IsDir:    info.IsDir(),
		Hidden:   hidden || isDotFile(info.Name()),
		System:   system,
		ReadOnly: info.Mode().Perm()&0200 == 0,
	}
}

// Extension returns the lowercase extension including the leading dot
func (f FileInfo) Extension() string {
	return strings.ToLower(path.Ext(f.Name))
}

// String returns a string representation of the file
func (f FileInfo) String() string {
	fileType := "file"
	if f.IsDir {
		fileType = "directory"
	}
	return fmt.Sprintf("%s: %s (size=%d, mtime=%s)",
		f.Path, fileType, f.Size, f.ModTime.Format(time.RFC3339))
}

func isDotFile(name string) bool {
	return len(name) > 1 && name[0] == '.' && name != ".."
}
