package revcache

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	cache "github.com/patrickmn/go-cache"
	. "github.com/stevegt/goadapt"
)

// nameCacheTTL bounds how long a resolved namehash->name mapping is
// trusted before the next resolution rescans history.
const nameCacheTTL = 10 * time.Minute

// NameSource supplies logical file names so namehashes can be mapped
// back to names.  ManifestNames returns the complete name list of the
// newest snapshot.  ChangedNames feeds the names touched by each
// change, newest first, and stops early once fn returns false.
type NameSource interface {
	ManifestNames() ([]string, error)
	ChangedNames(fn func(names []string) (more bool)) error
}

// ListKeys walks this repo's blob subtree and yields every stored
// (namehash, fingerprint) pair to fn until fn returns false.  Only
// paths shaped like shared storage keys with a 40-hex-char basename
// qualify; backups, quarantined blobs, and strays are skipped.
func (s *Store) ListKeys(fn func(nh NameHash, fp Fingerprint) bool) (err error) {
	defer Return(&err)

	err = filepath.WalkDir(s.repoCachePath(), func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			if os.IsNotExist(werr) {
				return nil
			}
			return werr
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(s.cfg.Dir, path)
		Ck(rerr)
		nh, fp, ok := splitSharedKey(rel)
		if !ok {
			return nil
		}
		if !fn(nh, fp) {
			return filepath.SkipAll
		}
		return nil
	})
	Ck(err)
	return nil
}

// ResolveNames maps namehashes back to logical names using src.  The
// newest manifest covers most names in one pass; whatever is left is
// hunted through change history, newest to oldest, until every hash
// is found or history runs out.  Hashes that never resolve are left
// out of the result.  Resolutions are memoized for a few minutes, so
// repeated calls skip the history scan.
func (s *Store) ResolveNames(src NameSource, hashes []NameHash) (names map[NameHash]string, err error) {
	defer Return(&err)

	names = make(map[NameHash]string, len(hashes))
	wanted := make(map[NameHash]bool)
	for _, nh := range hashes {
		if hit, ok := s.names.Get(nh.Hex()); ok {
			names[nh] = hit.(string)
			continue
		}
		wanted[nh] = true
	}
	if len(wanted) == 0 {
		return names, nil
	}

	take := func(candidates []string) (more bool) {
		for _, name := range candidates {
			nh := HashName(name)
			if wanted[nh] {
				names[nh] = name
				s.names.Set(nh.Hex(), name, cache.DefaultExpiration)
				delete(wanted, nh)
			}
		}
		return len(wanted) > 0
	}

	manifest, err := src.ManifestNames()
	Ck(err)
	if take(manifest) {
		err = src.ChangedNames(take)
		Ck(err)
	}
	return names, nil
}

// Files resolves the store's full contents to a name -> revisions
// map.  Shared layout only; namehashes with no resolvable name are
// omitted, matching ResolveNames.
func (s *Store) Files(src NameSource) (files map[string][]Fingerprint, err error) {
	defer Return(&err)

	byHash := make(map[NameHash][]Fingerprint)
	err = s.ListKeys(func(nh NameHash, fp Fingerprint) bool {
		byHash[nh] = append(byHash[nh], fp)
		return true
	})
	Ck(err)

	hashes := make([]NameHash, 0, len(byHash))
	for nh := range byHash {
		hashes = append(hashes, nh)
	}
	names, err := s.ResolveNames(src, hashes)
	Ck(err)

	files = make(map[string][]Fingerprint, len(names))
	for nh, name := range names {
		files[name] = byHash[nh]
	}
	return files, nil
}
