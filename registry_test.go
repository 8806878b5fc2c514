package revcache

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/stevegt/goadapt"
)

func TestMarkRepo(t *testing.T) {
	s := setup(t, Config{})
	err := s.MarkRepo("/home/alice/wild/.cache")
	tassert(t, err == nil, "MarkRepo: %v", err)
	err = s.MarkRepo("/home/bob/wild/.cache")
	tassert(t, err == nil, "MarkRepo: %v", err)
	// repeats are recorded as-is
	err = s.MarkRepo("/home/alice/wild/.cache")
	tassert(t, err == nil, "MarkRepo: %v", err)

	repos := filepath.Join(s.cfg.Dir, registryName)
	buf, err := os.ReadFile(repos)
	tassert(t, err == nil, "registry: %v", err)
	want := "/home/alice/wild\n/home/bob/wild\n/home/alice/wild\n"
	tassert(t, string(buf) == want, "registry %q", buf)

	fi, err := os.Stat(repos)
	Ck(err)
	tassert(t, fi.Mode().Perm() == 0o664, "registry mode %v", fi.Mode().Perm())
}
