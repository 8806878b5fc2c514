package revcache

import (
	"os"
	"path/filepath"

	. "github.com/stevegt/goadapt"
)

// registryName is the file at the cache root listing every consumer
// of the cache.  GC tooling reads it to find working copies to ask
// for keep sets.
const registryName = "repos"

// MarkRepo appends the consumer at path to the root's registry.  path
// is the consumer's own store path; its parent directory is what gets
// recorded.  Appends are not deduplicated; readers must tolerate
// duplicates and dead entries.  The registry is opened group-writable
// once by whoever created it.
func (s *Store) MarkRepo(path string) (err error) {
	defer Return(&err)

	repos := filepath.Join(s.cfg.Dir, registryName)
	fh, err := os.OpenFile(repos, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o666)
	Ck(err)
	_, werr := fh.WriteString(filepath.Dir(path) + "\n")
	cerr := fh.Close()
	Ck(werr)
	Ck(cerr)

	fi, err := os.Stat(repos)
	Ck(err)
	if ownedByUs(fi) {
		err = os.Chmod(repos, 0o664)
		Ck(err)
	}
	return nil
}
