package revcache

import (
	"bytes"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"syscall"

	. "github.com/stevegt/goadapt"
)

// Blob records arrive from the server already framed:
//
//	v1\ns<size>\nf<flags>\x00<content><fingerprint>
//
// or in the older headerless form:
//
//	<size>\x00<content><fingerprint>
//
// size counts the content bytes only; the 20-byte fingerprint of the
// revision follows the content.  The store never builds records, it
// only frames-checks them.

// ParseSizeFlags decodes a record header.  It returns the offset of
// the first content byte, the declared content size, and the server's
// flag word (0 when the header predates flags).
func ParseSizeFlags(data []byte) (offset int, size int64, flags uint64, err error) {
	defer Return(&err)

	nul := bytes.IndexByte(data, 0)
	ErrnoIf(nul < 0, syscall.EINVAL, "record header missing NUL")
	header := data[:nul]
	offset = nul + 1

	if len(header) > 0 && header[0] == 'v' {
		// only "v1" exists; "v1s6" and "v12\ns6" are foreign headers
		v1 := bytes.Equal(header, []byte("v1")) ||
			bytes.HasPrefix(header, []byte("v1\n"))
		ErrnoIf(!v1, syscall.EINVAL, "unsupported record version %q", header)
		sawSize := false
		for _, field := range bytes.Split(header[2:], []byte("\n")) {
			if len(field) == 0 {
				continue
			}
			switch field[0] {
			case 's':
				size, err = strconv.ParseInt(string(field[1:]), 10, 64)
				Ck(err)
				sawSize = true
			case 'f':
				flags, err = strconv.ParseUint(string(field[1:]), 10, 64)
				Ck(err)
			}
			// unknown fields are reserved for future headers
		}
		ErrnoIf(!sawSize, syscall.EINVAL, "record header missing size")
		return
	}

	size, err = strconv.ParseInt(string(header), 10, 64)
	Ck(err)
	return
}

// validData reports whether data is a complete record whose trailing
// fingerprint matches the basename of path.  Empty, truncated, and
// unparseable records are all invalid.
func validData(data []byte, path string) bool {
	if len(data) == 0 {
		return false
	}
	offset, size, _, err := ParseSizeFlags(data)
	if err != nil || size < 0 {
		return false
	}
	if int64(len(data)) <= size {
		// truncated write
		return false
	}
	end := int64(offset) + size
	if end+HashLen > int64(len(data)) {
		return false
	}
	node := data[end : end+HashLen]
	return filepath.Base(path) == hex.EncodeToString(node)
}
