package revcache

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Compact prunes the repo's cache subtree: backup files orphaned by a
// deleted original are removed, and directories left empty are
// unlinked bottom-up.  The subtree root itself always stays.
func (s *Store) Compact() error {
	return compactDir(s.repoCachePath())
}

// compactDir works post-order.  Each directory is read exactly once
// up front; what happens to one entry never depends on the live state
// of its siblings, only on that snapshot.
func compactDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			// a concurrent compactor got here first
			return nil
		}
		return errors.Wrapf(err, "compact %s", dir)
	}

	backups := make(map[string]bool)
	live := make(map[string]bool)
	for _, ent := range entries {
		if ent.IsDir() {
			sub := filepath.Join(dir, ent.Name())
			if err := compactDir(sub); err != nil {
				return err
			}
			// only succeeds once the subdir has emptied out; a racing
			// writer repopulating it simply keeps it alive
			_ = os.Remove(sub)
			continue
		}
		if !ent.Type().IsRegular() {
			continue
		}
		if strings.HasSuffix(ent.Name(), "_old") {
			backups[strings.TrimSuffix(ent.Name(), "_old")] = true
		} else {
			live[ent.Name()] = true
		}
	}

	for name := range backups {
		if !live[name] {
			tryUnlink(filepath.Join(dir, name+"_old"))
		}
	}
	return nil
}
