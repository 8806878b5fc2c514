//go:build windows

package revcache

// setUmask is a no-op on windows.
func setUmask(mask int) (old int) {
	return 0
}

// setStickyGroupDir is a no-op on windows; directory modes there
// don't carry setgid semantics.
func setStickyGroupDir(dir string, gid int) {
}
