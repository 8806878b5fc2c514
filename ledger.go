package revcache

import (
	"os"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
	. "github.com/stevegt/goadapt"
)

// LedgerSink receives one mark per stored revision per kind.  The
// repack orchestrator decides what to do with the marks; the store
// only announces what it holds.
type LedgerSink interface {
	MarkData(name string, fp Fingerprint)
	MarkHistory(name string, fp Fingerprint)
}

// MarkOptions tunes MarkLedger.
type MarkOptions struct {
	// PacksOnly skips loose-blob marking entirely; the packs subtree
	// has its own repack path.
	PacksOnly bool
}

// MarkLedger announces every (name, revision) held by this store to
// sink, once for data and once for history.  src resolves namehashes
// back to names.  Local stores hold nothing in the shared layout and
// mark nothing; so does a PacksOnly run.
func (s *Store) MarkLedger(src NameSource, sink LedgerSink, opts *MarkOptions) (err error) {
	defer Return(&err)

	if opts != nil && opts.PacksOnly {
		return nil
	}
	if !s.cfg.Shared {
		return nil
	}
	files, err := s.Files(src)
	Ck(err)
	for name, fps := range files {
		for _, fp := range fps {
			sink.MarkData(name, fp)
			sink.MarkHistory(name, fp)
		}
	}
	return nil
}

// LedgerEntry tracks one blob revision across a repack run.  The
// orchestrator flips the flags as packing and collection proceed;
// Cleanup acts on the final state.
type LedgerEntry struct {
	Name            string
	Node            Fingerprint
	DataRepacked    bool
	HistoryRepacked bool
	GCed            bool
}

// Ledger is the concrete sink used by the repack pipeline: entries in
// first-marked order, one per (name, revision).
type Ledger struct {
	Entries []*LedgerEntry
	index   map[Key]*LedgerEntry
}

func NewLedger() *Ledger {
	return &Ledger{index: make(map[Key]*LedgerEntry)}
}

// Entry returns the entry for (name, fp), creating it on first use.
func (l *Ledger) Entry(name string, fp Fingerprint) *LedgerEntry {
	k := Key{Name: name, Fp: fp}
	if e, ok := l.index[k]; ok {
		return e
	}
	e := &LedgerEntry{Name: name, Node: fp}
	l.index[k] = e
	l.Entries = append(l.Entries, e)
	return e
}

func (l *Ledger) MarkData(name string, fp Fingerprint) {
	l.Entry(name, fp)
}

func (l *Ledger) MarkHistory(name string, fp Fingerprint) {
	l.Entry(name, fp)
}

// SetDataRepacked records that the entry's data made it into a pack.
func (l *Ledger) SetDataRepacked(name string, fp Fingerprint) {
	l.Entry(name, fp).DataRepacked = true
}

// SetHistoryRepacked records that the entry's history made it into a
// pack.
func (l *Ledger) SetHistoryRepacked(name string, fp Fingerprint) {
	l.Entry(name, fp).HistoryRepacked = true
}

// SetGCed records that the entry was collected out from under the
// repack.
func (l *Ledger) SetGCed(name string, fp Fingerprint) {
	l.Entry(name, fp).GCed = true
}

// Save writes the ledger atomically, so the repack process on the
// other side of the handoff never sees a torn file.
func (l *Ledger) Save(path string) (err error) {
	defer Return(&err)
	buf, err := msgpack.Marshal(l.Entries)
	Ck(err)
	err = renameio.WriteFile(path, buf, 0o644)
	Ck(err)
	return nil
}

// LoadLedger reads a ledger previously written by Save.
func LoadLedger(path string) (l *Ledger, err error) {
	defer Return(&err)
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "ledger %s", path)
	}
	l = NewLedger()
	err = msgpack.Unmarshal(buf, &l.Entries)
	Ck(err, "ledger %s", path)
	for _, e := range l.Entries {
		l.index[Key{Name: e.Name, Fp: e.Node}] = e
	}
	return l, nil
}

// Cleanup deletes every blob the repack pipeline no longer needs:
// entries that were GCed, or whose data and history both made it into
// packs.  Deletes are best-effort; a racing process may have cleaned
// first.  Afterwards the repo subtree is compacted.
func (s *Store) Cleanup(entries []*LedgerEntry) (err error) {
	defer Return(&err)
	for i, e := range entries {
		if e.GCed || (e.DataRepacked && e.HistoryRepacked) {
			tryUnlink(s.keyPath(e.Name, e.Node))
		}
		s.progress("cleaning up", i+1, len(entries))
	}
	return s.Compact()
}
