package revcache

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/renameio"
	cache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/pkg/fileutils"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Default tuning, overridable through Config.
const (
	DefaultCacheBytes = int64(1000) << 30 // "1000 GB"
	DefaultRetention  = 24 * time.Hour
	DefaultPacksDir   = "packs"
)

// Progress observes long-running sweeps; total < 0 means unknown.
// Purely informational, may be nil.
type Progress func(topic string, done, total int)

// Presence classifies a Get result.
type Presence int

const (
	// Missing means no usable blob is on disk for the key.
	Missing Presence = iota
	// Found means the blob was read (and validated, when enabled).
	Found
	// Corrupt means a blob was present but failed validation and has
	// been quarantined.
	Corrupt
)

func (p Presence) String() string {
	switch p {
	case Found:
		return "found"
	case Corrupt:
		return "corrupt"
	default:
		return "missing"
	}
}

// VerifyError is fatal: a blob failed validation immediately after it
// was written, so the bytes on disk cannot be trusted.
type VerifyError struct {
	Path string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("local cache write was corrupted %s", e.Path)
}

// Config describes one cache store.  The zero value of each field
// selects the documented default; Dir is required, and RepoName is
// required for shared stores.
type Config struct {
	// Dir is the cache root.
	Dir string
	// RepoName namespaces blobs inside a shared root.
	RepoName string
	// Shared selects the machine-wide namehash layout; unset, blobs
	// nest under their logical name for a single repo.
	Shared bool
	// Validate defaults to ValidateOn.
	Validate ValidateMode
	// CorruptLog, when set, receives one line per detected corruption.
	CorruptLog string
	// CacheBytes caps the post-GC cache size.  Default 1000 GB.
	CacheBytes int64
	// Retention keeps recently touched files out of GC's reach.
	// Default 24h.
	Retention time.Duration
	// PacksDir names the subtree GC must never touch.  Default "packs".
	PacksDir string
	// CacheGroup optionally names a group that owns shared cache
	// directories.
	CacheGroup string
	// Progress receives sweep updates.
	Progress Progress
}

// Store is a content-addressed cache of file revision blobs under a
// single root directory.  Multiple processes may operate on the same
// root concurrently; the store never locks, it degrades gracefully
// when a race loses.
type Store struct {
	cfg     Config
	gid     int // resolved CacheGroup, -1 when unset
	corrupt io.Writer
	names   *cache.Cache
}

// Open readies a store rooted at cfg.Dir.  A shared store gets its
// root created sticky-group on the spot; a local store creates
// directories lazily on first write.
func Open(cfg Config) (s *Store, err error) {
	defer Return(&err)
	Assert(cfg.Dir != "", "store dir required")
	if cfg.Shared {
		Assert(cfg.RepoName != "", "shared store requires a repo name")
	}
	if cfg.CacheBytes == 0 {
		cfg.CacheBytes = DefaultCacheBytes
	}
	if cfg.Retention == 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.PacksDir == "" {
		cfg.PacksDir = DefaultPacksDir
	}

	s = &Store{
		cfg:   cfg,
		gid:   -1,
		names: cache.New(nameCacheTTL, 2*nameCacheTTL),
	}
	if cfg.CacheGroup != "" {
		s.gid = lookupGroupID(cfg.CacheGroup)
	}
	if cfg.CorruptLog != "" {
		s.corrupt = &lumberjack.Logger{
			Filename:   cfg.CorruptLog,
			MaxSize:    10, // megabytes
			MaxBackups: 1,
		}
	}

	if cfg.Shared {
		err = s.mkStickyGroupDir(cfg.Dir)
		Ck(err, "unable to create cache root %s", cfg.Dir)
	}
	return s, nil
}

// lookupGroupID resolves a group name to a gid.  Unknown groups warn
// and disable the chown rather than failing the store.
func lookupGroupID(name string) int {
	g, err := user.LookupGroup(name)
	if err != nil {
		log.Warnf("unable to resolve cache group %q: %v", name, err)
		return -1
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		log.Warnf("unable to resolve cache group %q: %v", name, err)
		return -1
	}
	return gid
}

// StorageKey returns the root-relative storage key this store uses
// for (name, fp).  Useful for building gc keep lists.
func (s *Store) StorageKey(name string, fp Fingerprint) string {
	if s.cfg.Shared {
		return SharedKey(s.cfg.RepoName, name, fp)
	}
	return LocalKey(name, fp)
}

// keyPath maps a key to its absolute path under the store root.
func (s *Store) keyPath(name string, fp Fingerprint) string {
	return filepath.Join(s.cfg.Dir, s.StorageKey(name, fp))
}

// repoCachePath is the subtree holding this repo's blobs: the
// reponame subdir of a shared root, or the root itself for a local
// store.
func (s *Store) repoCachePath() string {
	if s.cfg.Shared {
		return filepath.Join(s.cfg.Dir, s.cfg.RepoName)
	}
	return s.cfg.Dir
}

func (s *Store) progress(topic string, done, total int) {
	if s.cfg.Progress != nil {
		s.cfg.Progress(topic, done, total)
	}
}

// Get reads the blob for (name, fp).  Any read failure degrades to
// Missing.  A zero-length file counts as absent; when validation is
// enabled it is also quarantined, like any other bad blob.
func (s *Store) Get(name string, fp Fingerprint) (data []byte, p Presence, err error) {
	path := s.keyPath(name, fp)
	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return nil, Missing, nil
	}
	if len(data) == 0 {
		if s.cfg.Validate != ValidateOff {
			s.logCorrupt(path, "read")
			s.quarantine(path)
		}
		return nil, Missing, nil
	}
	if s.cfg.Validate != ValidateOff && !validData(data, path) {
		s.logCorrupt(path, "read")
		s.quarantine(path)
		return nil, Corrupt, nil
	}
	return data, Found, nil
}

// GetMissing filters keys down to those not usable from this cache,
// preserving input order.  Any stat failure counts as missing; strict
// mode additionally validates content before trusting a file, with
// the validator's usual quarantine side effect.
func (s *Store) GetMissing(keys []Key) (missing []Key) {
	for i, k := range keys {
		s.progress("discovering", i+1, len(keys))
		path := s.keyPath(k.Name, k.Fp)
		fi, err := os.Stat(path)
		found := err == nil && fi.Size() > 0
		if found && s.cfg.Validate == ValidateStrict &&
			!s.validateFile(path, "contains") {
			found = false
		}
		if !found {
			missing = append(missing, k)
		}
	}
	return missing
}

// Add writes one complete blob record into the cache.  data must
// already carry the wire header and trailing fingerprint.  If the key
// exists its current file is kept as <key>_old for recovery, then the
// new record is written read-only via rename and (unless validation
// is off) proved back off the disk.  A failed proof returns
// *VerifyError with the file already quarantined.
func (s *Store) Add(name string, fp Fingerprint, data []byte) (err error) {
	defer Return(&err)
	path := s.keyPath(name, fp)

	oldmask := setUmask(0o002)
	defer setUmask(oldmask)

	if exists(path) {
		// keep the previous version for recovery
		backup := path + "_old"
		if exists(backup) {
			// the stale backup is read-only and would block the copy
			err = removeFile(backup)
			Ck(err)
		}
		err = fileutils.CopyFile(backup, path)
		Ck(err)
	}

	err = s.mkStickyGroupDir(filepath.Dir(path))
	Ck(err)

	err = renameio.WriteFile(path, data, 0o444)
	Ck(err, "unable to write %s", path)

	if s.cfg.Validate != ValidateOff && !s.validateFile(path, "write") {
		return &VerifyError{Path: path}
	}
	return nil
}

// mkStickyGroupDir creates dir and any missing parents.  Newly
// created directories are handed to the cache group when one is
// configured and marked setgid group-writable, so several users can
// feed one cache root.
func (s *Store) mkStickyGroupDir(dir string) (err error) {
	defer Return(&err)

	var missing []string
	for p := filepath.Clean(dir); p != "" && !exists(p); p = filepath.Dir(p) {
		missing = append(missing, p)
		if p == filepath.Dir(p) {
			break
		}
	}

	// deepest last; create top-down, tolerate racing creators
	for i := len(missing) - 1; i >= 0; i-- {
		merr := os.Mkdir(missing[i], 0o777)
		if merr != nil && !os.IsExist(merr) {
			return errors.Wrapf(merr, "unable to create %s", missing[i])
		}
	}
	for _, p := range missing {
		setStickyGroupDir(p, s.gid)
	}
	return nil
}
