package revcache

import (
	"bytes"
	"os"
	"runtime"
	"strconv"
)

// GetGID returns the goroutine ID of its calling function, for logging
// purposes.
func GetGID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	b = b[:bytes.IndexByte(b, ' ')]
	n, _ := strconv.ParseUint(string(b), 10, 64)
	return n
}

// exists reports whether path can be stat'd.
func exists(path string) (found bool) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return true
}

// removeFile deletes path.  Blobs and backups land on disk read-only,
// which blocks a plain remove on windows; clearing the bit first
// keeps deletes working everywhere.
func removeFile(path string) (err error) {
	err = os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return err
	}
	_ = os.Chmod(path, 0o664)
	return os.Remove(path)
}

// tryUnlink removes path, ignoring all errors.  Used where a
// concurrent process may legitimately have removed the file first.
func tryUnlink(path string) {
	_ = removeFile(path)
}
