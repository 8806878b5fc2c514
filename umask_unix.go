//go:build !windows

package revcache

import (
	"os"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// setUmask sets the process umask, returning the previous mask so
// callers can restore it.
func setUmask(mask int) (old int) {
	return syscall.Umask(mask)
}

// setStickyGroupDir makes a freshly created cache directory
// group-writable with setgid so files created inside it inherit the
// group.  gid < 0 leaves ownership alone.  Failures are warnings.
func setStickyGroupDir(dir string, gid int) {
	if gid >= 0 {
		if err := os.Chown(dir, -1, gid); err != nil {
			log.Warnf("unable to chown %s: %v", dir, err)
		}
	}
	if err := os.Chmod(dir, 0o2775); err != nil {
		log.Warnf("unable to chmod %s: %v", dir, err)
	}
}
