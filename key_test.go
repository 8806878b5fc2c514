package revcache

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestHashName(t *testing.T) {
	got := HashName("main.go").Hex()
	tassert(t, got == "0607f785dfa3c3861b3239f6723eb276d8056461", "namehash %s", got)
}

func TestSharedKey(t *testing.T) {
	fp := fpn(0xee)
	want := filepath.Join("fennel",
		"9b", "813c725e1437e5cd18b9d581d86b756c534019", fp.Hex())
	got := SharedKey("fennel", "docs/recipe.txt", fp)
	tassert(t, got == want, "key %s", got)
}

func TestLocalKey(t *testing.T) {
	fp := fpn(0xdd)
	want := filepath.Join("lib", "veg", "turnip.go", fp.Hex())
	got := LocalKey("lib/veg/turnip.go", fp)
	tassert(t, got == want, "key %s", got)
}

func TestParseFingerprint(t *testing.T) {
	fp := fpn(0xcc)
	got, err := ParseFingerprint(fp.Hex())
	tassert(t, err == nil, "round trip: %v", err)
	tassert(t, got == fp, "round trip %s", got.Hex())

	_, err = ParseFingerprint("short")
	tassert(t, err != nil, "short fingerprint accepted")

	_, err = ParseFingerprint(strings.Repeat("zz", HashLen))
	tassert(t, err != nil, "non-hex fingerprint accepted")
}

func TestKeyString(t *testing.T) {
	k := Key{Name: "x.txt", Fp: fpn(0x01)}
	want := "x.txt@" + strings.Repeat("01", HashLen)
	tassert(t, k.String() == want, "key %s", k)
}

func TestSplitSharedKey(t *testing.T) {
	fp := fpn(0xbb)
	rel := SharedKey("fennel", "x.txt", fp)
	nh, got, ok := splitSharedKey(rel)
	tassert(t, ok, "well-formed key rejected")
	tassert(t, got == fp, "fingerprint %s", got.Hex())
	tassert(t, nh == HashName("x.txt"), "namehash %s", nh.Hex())

	nhex := HashName("x.txt").Hex()
	bad := []string{
		filepath.Join("x.txt", fp.Hex()), // local shape
		rel + "_old",                     // backup
		rel + ".corrupt",                 // quarantine
		rel[:len(rel)-1],                 // short basename
		filepath.Join("fennel", nhex[:3], nhex[3:], fp.Hex()),
		filepath.Join("fennel", "zz", strings.Repeat("z", 38), fp.Hex()),
	}
	for _, r := range bad {
		if _, _, ok := splitSharedKey(r); ok {
			t.Fatalf("accepted %q", r)
		}
	}
}
