package revcache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestParseValidateMode(t *testing.T) {
	tassert(t, ParseValidateMode("off") == ValidateOff, "off")
	tassert(t, ParseValidateMode("strict") == ValidateStrict, "strict")
	tassert(t, ParseValidateMode("on") == ValidateOn, "on")
	tassert(t, ParseValidateMode("bogus") == ValidateOn, "unknown must fall back to on")

	tassert(t, ValidateOff.String() == "off", "want off")
	tassert(t, ValidateStrict.String() == "strict", "want strict")
	tassert(t, ValidateOn.String() == "on", "want on")
}

func TestValidateFile(t *testing.T) {
	logpath := filepath.Join(t.TempDir(), "corrupt.log")
	s := setup(t, Config{Shared: true, CorruptLog: logpath})
	fp := fpn(0x61)

	good := plant(t, s, "main.go", fp, mkblob([]byte("ok"), fp, 0))
	tassert(t, s.validateFile(good, "contains"), "good blob failed validation")
	tassert(t, exists(good), "good blob quarantined")

	bad := plant(t, s, "x.txt", fp, []byte("junk"))
	tassert(t, !s.validateFile(bad, "contains"), "bad blob passed validation")
	tassert(t, !exists(bad), "bad blob left in place")
	tassert(t, exists(bad+".corrupt"), "bad blob not quarantined")

	buf, err := os.ReadFile(logpath)
	tassert(t, err == nil, "corrupt log: %v", err)
	want := fmt.Sprintf("corrupt %s during contains\n", bad)
	tassert(t, string(buf) == want, "log %q", buf)

	gone := filepath.Join(s.cfg.Dir, "nope")
	tassert(t, !s.validateFile(gone, "read"), "unreadable file passed validation")
	tassert(t, !exists(gone+".corrupt"), "unreadable file quarantined")
}
