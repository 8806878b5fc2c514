package revcache

import (
	"container/heap"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// GCStats summarizes one collection sweep.
type GCStats struct {
	// Examined counts every candidate file seen during the walk.
	Examined int
	// Removed counts deletions from both passes.
	Removed int
	// OriginalBytes is the candidate total before the sweep.
	OriginalBytes int64
	// KeptBytes is what survived, after cap enforcement.
	KeptBytes int64
}

func (st GCStats) String() string {
	return fmt.Sprintf("finished: removed %d of %d files (%.2f GB to %.2f GB)",
		st.Removed, st.Examined,
		gigabytes(st.OriginalBytes), gigabytes(st.KeptBytes))
}

func gigabytes(n int64) float64 {
	return float64(n) / 1024.0 / 1024.0 / 1024.0
}

// gcItem is one kept file, prioritized for eviction by access time.
type gcItem struct {
	atime time.Time
	path  string
	size  int64
	seq   int
}

// gcQueue is a min-heap of kept files, oldest access first.  Equal
// atimes break in insertion order, so a sweep over untouched files
// evicts in walk order.
type gcQueue []*gcItem

func (q gcQueue) Len() int { return len(q) }

func (q gcQueue) Less(i, j int) bool {
	if q[i].atime.Equal(q[j].atime) {
		return q[i].seq < q[j].seq
	}
	return q[i].atime.Before(q[j].atime)
}

func (q gcQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *gcQueue) Push(x interface{}) {
	*q = append(*q, x.(*gcItem))
}

func (q *gcQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// GC sweeps the entire cache root.  Files outside the keep set whose
// last access predates the retention window are deleted immediately;
// survivors are then evicted oldest-first until the kept total fits
// under Config.CacheBytes.  keep holds slash-separated storage keys
// relative to the root.  The registry file and the packs subtree are
// never touched.
// Concurrent deletions by other processes are warnings, not errors.
func (s *Store) GC(keep map[string]bool) (stats GCStats, err error) {
	defer Return(&err)

	queue := gcQueue{}
	heap.Init(&queue)
	cutoff := time.Now().Add(-s.cfg.Retention)
	seq := 0

	err = filepath.WalkDir(s.cfg.Dir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			if os.IsNotExist(werr) {
				log.Warnf("file %s was removed by another process", path)
				return nil
			}
			return werr
		}
		if d.IsDir() {
			if d.Name() == s.cfg.PacksDir && path != s.cfg.Dir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == registryName {
			return nil
		}

		stats.Examined++
		s.progress("removing unnecessary files", stats.Examined, -1)

		fi, serr := d.Info()
		if serr != nil {
			if os.IsNotExist(serr) {
				log.Warnf("file %s was removed by another process", path)
				return nil
			}
			return serr
		}
		stats.OriginalBytes += fi.Size()

		key, kerr := filepath.Rel(s.cfg.Dir, path)
		Ck(kerr)
		if keep[filepath.ToSlash(key)] || atime(fi).After(cutoff) {
			heap.Push(&queue, &gcItem{
				atime: atime(fi),
				path:  path,
				size:  fi.Size(),
				seq:   seq,
			})
			seq++
			stats.KeptBytes += fi.Size()
			return nil
		}

		if rerr := removeFile(path); rerr != nil {
			if !os.IsNotExist(rerr) {
				return errors.Wrapf(rerr, "gc %s", path)
			}
			log.Warnf("file %s was removed by another process", path)
			return nil
		}
		stats.Removed++
		return nil
	})
	Ck(err)

	// evict oldest survivors until the cache fits under the cap
	if stats.KeptBytes > s.cfg.CacheBytes {
		excess := stats.KeptBytes - s.cfg.CacheBytes
		done := int64(0)
		for queue.Len() > 0 && stats.KeptBytes > s.cfg.CacheBytes && stats.KeptBytes > 0 {
			item := heap.Pop(&queue).(*gcItem)
			rerr := removeFile(item.path)
			switch {
			case rerr == nil:
			case os.IsNotExist(rerr):
				log.Warnf("file %s was removed by another process", item.path)
			default:
				return stats, errors.Wrapf(rerr, "gc %s", item.path)
			}
			stats.KeptBytes -= item.size
			stats.Removed++
			done += item.size
			s.progress("enforcing cache limit", int(done), int(excess))
		}
	}

	log.Debugf("%s", stats)
	return stats, nil
}
