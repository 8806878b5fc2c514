package revcache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// HashLen is the byte length of both fingerprints and namehashes.
const HashLen = 20

// Fingerprint identifies the exact bytes of one blob revision.  The
// server assigns it; the store never recomputes it and only ever
// compares it against a blob's trailing bytes and its basename.
type Fingerprint [HashLen]byte

// NameHash is the sha1 of a file's logical path.  Shared stores file
// blobs under the namehash rather than the name so that one cache
// root can serve many repos without leaking path names into a
// world-readable directory tree.
type NameHash [HashLen]byte

func (fp Fingerprint) Hex() string {
	return hex.EncodeToString(fp[:])
}

func (fp Fingerprint) String() string {
	return fp.Hex()
}

func (nh NameHash) Hex() string {
	return hex.EncodeToString(nh[:])
}

// ParseFingerprint converts a 40-character hex string back into a
// Fingerprint.
func ParseFingerprint(s string) (fp Fingerprint, err error) {
	buf, err := hex.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("malformed fingerprint %q: %w", s, err)
	}
	if len(buf) != HashLen {
		return fp, fmt.Errorf("malformed fingerprint %q: want %d bytes, got %d", s, HashLen, len(buf))
	}
	copy(fp[:], buf)
	return fp, nil
}

// HashName returns the namehash of a logical file path.
func HashName(name string) (nh NameHash) {
	return NameHash(sha1.Sum([]byte(name)))
}

// Key names one blob revision: the file's logical path plus the
// fingerprint of the wanted revision.
type Key struct {
	Name string
	Fp   Fingerprint
}

func (k Key) String() string {
	return k.Name + "@" + k.Fp.Hex()
}

// LocalKey is the storage key of a blob in a single-repo store: the
// logical name nested directly, then the fingerprint.  Pure function;
// distinct (name, fp) pairs map to distinct keys.
func LocalKey(name string, fp Fingerprint) string {
	return filepath.Join(name, fp.Hex())
}

// SharedKey is the storage key of a blob in a machine-wide shared
// store.  The namehash is split after two hex characters so no single
// directory collects every name in the cache.
func SharedKey(reponame, name string, fp Fingerprint) string {
	nh := HashName(name).Hex()
	return filepath.Join(reponame, nh[:2], nh[2:], fp.Hex())
}

// splitSharedKey recovers (namehash, fingerprint) from a shared-space
// storage key relative to the store root.  Keys whose shape doesn't
// match the shared layout (wrong nesting, non-hex, wrong length) are
// rejected; the walker uses that to skip packs, backups, and other
// strays.
func splitSharedKey(rel string) (nh NameHash, fp Fingerprint, ok bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 4 {
		return
	}
	// ...reponame/ab/cdef.../<fingerprint>
	prefix := parts[len(parts)-3]
	rest := parts[len(parts)-2]
	base := parts[len(parts)-1]
	if len(prefix) != 2 || len(rest) != 2*HashLen-2 || len(base) != 2*HashLen {
		return
	}
	buf, err := hex.DecodeString(prefix + rest)
	if err != nil {
		return
	}
	copy(nh[:], buf)
	fp, err = ParseFingerprint(base)
	if err != nil {
		return
	}
	return nh, fp, true
}
