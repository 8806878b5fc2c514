package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmdtest"
	"github.com/pkg/fileutils"
)

var update = flag.Bool("update", false, "update test files with results")

func TestCLI(t *testing.T) {
	ts, err := cmdtest.Read("testdata")
	if err != nil {
		t.Fatal(err)
	}
	ts.KeepRootDirs = true
	srcdir, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	ts.Setup = func(dir string) (err error) {
		// carrot.blob is a framed record whose trailing fingerprint is
		// 40 a's; shared.toml switches on the shared layout
		for _, name := range []string{"carrot.blob", "shared.toml", "manifest.txt"} {
			err = fileutils.CopyFile(name, filepath.Join(srcdir, "testdata", name))
			if err != nil {
				panic(err)
			}
		}
		return
	}
	ts.Commands["revcache"] = cmdtest.InProcessProgram("revcache", run)
	ts.Run(t, *update)
}
