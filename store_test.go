package revcache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/stevegt/goadapt"
)

const testCacheDirPrefix = "revcache"
const testRepoName = "fennel"

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

// setup opens a store in a scratch root.
func setup(t *testing.T, cfg Config) *Store {
	var err error
	var dir string

	debug := os.Getenv("DEBUG")
	if debug == "1" {
		dir, err = os.MkdirTemp("", testCacheDirPrefix)
		Ck(err)
		fmt.Println(dir)
		// no cleanup
	} else {
		dir = t.TempDir()
		// automatically cleaned up
	}

	if cfg.Dir == "" {
		cfg.Dir = dir
	}
	if cfg.Shared && cfg.RepoName == "" {
		cfg.RepoName = testRepoName
	}
	s, err := Open(cfg)
	Ck(err)
	tassert(t, s != nil, "store is nil")
	return s
}

// fpn makes a deterministic fingerprint out of one repeated byte.
func fpn(b byte) (fp Fingerprint) {
	for i := range fp {
		fp[i] = b
	}
	return
}

// mkblob frames content the way the server does: v1 header, content,
// trailing fingerprint.  The flags field is only emitted when set.
func mkblob(content []byte, fp Fingerprint, flags uint64) (buf []byte) {
	header := fmt.Sprintf("v1\ns%d", len(content))
	if flags != 0 {
		header += fmt.Sprintf("\nf%d", flags)
	}
	buf = append(buf, header...)
	buf = append(buf, 0)
	buf = append(buf, content...)
	buf = append(buf, fp[:]...)
	return
}

func addBlob(t *testing.T, s *Store, name string, fp Fingerprint, content string) {
	t.Helper()
	err := s.Add(name, fp, mkblob([]byte(content), fp, 0))
	tassert(t, err == nil, "Add %s: %v", name, err)
}

// plant writes a raw file at the key's path, bypassing Add.
func plant(t *testing.T, s *Store, name string, fp Fingerprint, raw []byte) (path string) {
	t.Helper()
	path = s.keyPath(name, fp)
	err := os.MkdirAll(filepath.Dir(path), 0o775)
	Ck(err)
	err = os.WriteFile(path, raw, 0o644)
	Ck(err)
	return path
}

// age pushes a file's atime and mtime into the past.
func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	when := time.Now().Add(-d)
	err := os.Chtimes(path, when, when)
	Ck(err)
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(Config{})
	tassert(t, err != nil, "expected error for missing dir")

	_, err = Open(Config{Dir: t.TempDir(), Shared: true})
	tassert(t, err != nil, "expected error for shared store without repo name")
}

func TestOpenSharedCreatesRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	_, err := Open(Config{Dir: dir, RepoName: testRepoName, Shared: true})
	tassert(t, err == nil, "Open: %v", err)
	tassert(t, exists(dir), "cache root missing")
}

func TestAddGet(t *testing.T) {
	s := setup(t, Config{Shared: true})
	fp := fpn(0x11)
	addBlob(t, s, "docs/recipe.txt", fp, "carrots")

	data, p, err := s.Get("docs/recipe.txt", fp)
	tassert(t, err == nil, "Get: %v", err)
	tassert(t, p == Found, "presence %v", p)
	want := mkblob([]byte("carrots"), fp, 0)
	tassert(t, string(data) == string(want), "data %q", data)

	path := filepath.Join(s.cfg.Dir, testRepoName,
		"9b", "813c725e1437e5cd18b9d581d86b756c534019", fp.Hex())
	tassert(t, exists(path), "blob not at shared key path")
	fi, err := os.Stat(path)
	Ck(err)
	tassert(t, fi.Mode().Perm() == 0o444, "blob mode %v", fi.Mode().Perm())
}

func TestAddGetLocal(t *testing.T) {
	s := setup(t, Config{})
	fp := fpn(0x22)
	addBlob(t, s, "lib/veg/turnip.go", fp, "greens")

	path := filepath.Join(s.cfg.Dir, "lib", "veg", "turnip.go", fp.Hex())
	tassert(t, exists(path), "blob not at local key path")

	data, p, err := s.Get("lib/veg/turnip.go", fp)
	tassert(t, err == nil, "Get: %v", err)
	tassert(t, p == Found, "presence %v", p)
	tassert(t, len(data) > 0, "no data")
}

func TestAddStickyGroupDirs(t *testing.T) {
	s := setup(t, Config{Shared: true})
	fp := fpn(0xd1)
	addBlob(t, s, "docs/recipe.txt", fp, "beets")

	dir := filepath.Dir(s.keyPath("docs/recipe.txt", fp))
	fi, err := os.Stat(dir)
	Ck(err)
	tassert(t, fi.Mode().Perm() == 0o775, "dir perm %v", fi.Mode().Perm())
	tassert(t, fi.Mode()&os.ModeSetgid != 0, "setgid missing on %s", dir)
}

func TestAddKeepsBackup(t *testing.T) {
	s := setup(t, Config{Shared: true})
	fp := fpn(0x33)
	addBlob(t, s, "x.txt", fp, "first")
	addBlob(t, s, "x.txt", fp, "second")

	path := s.keyPath("x.txt", fp)
	backup, err := os.ReadFile(path + "_old")
	tassert(t, err == nil, "backup: %v", err)
	tassert(t, string(backup) == string(mkblob([]byte("first"), fp, 0)),
		"backup holds %q", backup)

	data, p, err := s.Get("x.txt", fp)
	tassert(t, err == nil, "Get: %v", err)
	tassert(t, p == Found, "presence %v", p)
	tassert(t, string(data) == string(mkblob([]byte("second"), fp, 0)),
		"live blob holds %q", data)

	// the third write must replace the stale read-only backup
	addBlob(t, s, "x.txt", fp, "third")
	backup, err = os.ReadFile(path + "_old")
	tassert(t, err == nil, "backup: %v", err)
	tassert(t, string(backup) == string(mkblob([]byte("second"), fp, 0)),
		"stale backup survived: %q", backup)
}

func TestAddVerifyFailure(t *testing.T) {
	s := setup(t, Config{Shared: true})
	fp := fpn(0x44)
	// framed for a different revision
	bad := mkblob([]byte("soup"), fpn(0x55), 0)
	err := s.Add("pkg/soup/pot.go", fp, bad)
	_, ok := err.(*VerifyError)
	tassert(t, ok, "want VerifyError, got %v", err)

	path := s.keyPath("pkg/soup/pot.go", fp)
	tassert(t, !exists(path), "bad blob left in place")
	tassert(t, exists(path+".corrupt"), "bad blob not quarantined")
}

func TestGetCorruptQuarantines(t *testing.T) {
	logpath := filepath.Join(t.TempDir(), "corrupt.log")
	s := setup(t, Config{Shared: true, CorruptLog: logpath})
	fp := fpn(0x66)
	path := plant(t, s, "main.go", fp, []byte("not a record"))

	data, p, err := s.Get("main.go", fp)
	tassert(t, err == nil, "Get: %v", err)
	tassert(t, p == Corrupt, "presence %v", p)
	tassert(t, data == nil, "data returned for corrupt blob")
	tassert(t, !exists(path), "corrupt blob left in place")
	tassert(t, exists(path+".corrupt"), "corrupt blob not quarantined")

	buf, err := os.ReadFile(logpath)
	tassert(t, err == nil, "corrupt log: %v", err)
	want := fmt.Sprintf("corrupt %s during read\n", path)
	tassert(t, string(buf) == want, "log %q", buf)
}

func TestEmptyFileIsAbsent(t *testing.T) {
	s := setup(t, Config{Shared: true})
	fp := fpn(0x77)
	path := plant(t, s, "x.txt", fp, nil)

	// a probe only stats, so the empty file stays put
	missing := s.GetMissing([]Key{{Name: "x.txt", Fp: fp}})
	tassert(t, len(missing) == 1, "empty file counted as present")
	tassert(t, exists(path), "probe must not touch the file")

	// a read quarantines it
	_, p, err := s.Get("x.txt", fp)
	tassert(t, err == nil, "Get: %v", err)
	tassert(t, p == Missing, "presence %v", p)
	tassert(t, exists(path+".corrupt"), "empty blob not quarantined")
}

func TestValidateOff(t *testing.T) {
	s := setup(t, Config{Shared: true, Validate: ValidateOff})
	fp := fpn(0x88)
	path := plant(t, s, "x.txt", fp, []byte("garbage"))

	data, p, err := s.Get("x.txt", fp)
	tassert(t, err == nil, "Get: %v", err)
	tassert(t, p == Found, "presence %v", p)
	tassert(t, string(data) == "garbage", "data %q", data)
	tassert(t, exists(path), "blob moved with validation off")
}

func TestStrictProbeValidates(t *testing.T) {
	s := setup(t, Config{Shared: true, Validate: ValidateStrict})
	fp := fpn(0x99)
	// well-formed record framed for another revision
	path := plant(t, s, "a/b/c.txt", fp, mkblob([]byte("stew"), fpn(0x9a), 0))

	missing := s.GetMissing([]Key{{Name: "a/b/c.txt", Fp: fp}})
	tassert(t, len(missing) == 1, "strict probe trusted a bad blob")
	tassert(t, exists(path+".corrupt"), "bad blob not quarantined")
}

func TestDefaultProbeStatsOnly(t *testing.T) {
	s := setup(t, Config{Shared: true})
	fp := fpn(0xa1)
	path := plant(t, s, "a/b/c.txt", fp, []byte("junk"))

	missing := s.GetMissing([]Key{{Name: "a/b/c.txt", Fp: fp}})
	tassert(t, len(missing) == 0, "default probe read the blob")
	tassert(t, exists(path), "default probe must not quarantine")
}

func TestGetMissingOrder(t *testing.T) {
	s := setup(t, Config{Shared: true})
	have := fpn(0xb1)
	addBlob(t, s, "main.go", have, "package main")

	keys := []Key{
		{Name: "README.md", Fp: fpn(0xb2)},
		{Name: "main.go", Fp: have},
		{Name: "main.go", Fp: fpn(0xb3)},
	}
	missing := s.GetMissing(keys)
	tassert(t, len(missing) == 2, "missing %v", missing)
	tassert(t, missing[0] == keys[0], "order not preserved: %v", missing)
	tassert(t, missing[1] == keys[2], "order not preserved: %v", missing)
}

func TestProgressSink(t *testing.T) {
	var got []string
	s := setup(t, Config{Shared: true, Progress: func(topic string, done, total int) {
		got = append(got, fmt.Sprintf("%s %d/%d", topic, done, total))
	}})
	s.GetMissing([]Key{{Name: "x.txt", Fp: fpn(0xc1)}})
	tassert(t, len(got) == 1, "progress calls %v", got)
	tassert(t, got[0] == "discovering 1/1", "progress %v", got)
}
