//go:build windows

package revcache

import (
	"os"
	"syscall"
	"time"
)

// atime returns the last access time recorded for fi, falling back to
// the modification time when the filesystem doesn't track access.
func atime(fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Win32FileAttributeData); ok {
		return time.Unix(0, st.LastAccessTime.Nanoseconds())
	}
	return fi.ModTime()
}

// ownedByUs is always false on windows; the registry chmod that
// depends on it is skipped there.
func ownedByUs(fi os.FileInfo) bool {
	return false
}
