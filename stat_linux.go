//go:build linux

package revcache

import (
	"os"
	"syscall"
	"time"
)

// atime returns the last access time recorded for fi.
func atime(fi os.FileInfo) time.Time {
	st := fi.Sys().(*syscall.Stat_t)
	return time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec))
}

// ownedByUs reports whether the current uid owns the file.
func ownedByUs(fi os.FileInfo) bool {
	st := fi.Sys().(*syscall.Stat_t)
	return int(st.Uid) == os.Getuid()
}
