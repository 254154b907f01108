//go:build windows

package scanner

import (
	"os"
	"syscall"
)

// platformAttributes reads the hidden and system attribute bits.
func platformAttributes(info os.FileInfo) (hidden, system bool) {
	sys, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return false, false
	}
	return sys.FileAttributes&syscall.FILE_ATTRIBUTE_HIDDEN != 0,
		sys.FileAttributes&syscall.FILE_ATTRIBUTE_SYSTEM != 0
}
