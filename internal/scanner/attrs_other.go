//go:build !windows

package scanner

import "os"

// platformAttributes has no attribute bits outside Windows; hidden files are dot files.
func platformAttributes(info os.FileInfo) (hidden, system bool) {
	return false, false
}
