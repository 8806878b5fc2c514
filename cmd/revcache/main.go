package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"

	"github.com/docopt/docopt-go"

	"github.com/t7a/revcache"
)

func init() {
	var debug string
	debug = os.Getenv("DEBUG")
	if debug == "1" {
		log.SetLevel(log.DebugLevel)
	}
	logrus.SetReportCaller(true)
	formatter := &logrus.TextFormatter{
		CallerPrettyfier: caller(),
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyFile: "caller",
		},
	}
	formatter.TimestampFormat = "15:04:05.999999999"
	logrus.SetFormatter(formatter)
}

// caller returns string presentation of log caller which is formatted as
// `/path/to/file.go:line_number`. e.g. `/internal/app/api.go:25`
// https://stackoverflow.com/questions/63658002/is-it-possible-to-wrap-logrus-logger-functions-without-losing-the-line-number-pr
func caller() func(*runtime.Frame) (function string, file string) {
	return func(f *runtime.Frame) (function string, file string) {
		p, _ := os.Getwd()
		return "", fmt.Sprintf("%s:%d gid %d", strings.TrimPrefix(f.File, p), f.Line, revcache.GetGID())
	}
}

type Opts struct {
	Key      bool
	Put      bool
	Get      bool
	Missing  bool
	Gc       bool
	Compact  bool
	Markrepo bool
	Mark     bool
	Cleanup  bool
	Name     string
	Fp       string
	Keyspecs []string
	Path     string
	Ledger   string
	Dir      string
	Config   string
	Keep     string
	Manifest string
}

func main() {
	// see https://github.com/google/go-cmdtest
	os.Exit(run())
}

func run() (rc int) {

	usage := `revcache

Usage:
  revcache key <name> <fp> [options]
  revcache put <name> <fp> [options]
  revcache get <name> <fp> [options]
  revcache missing <keyspecs>... [options]
  revcache gc [options]
  revcache compact [options]
  revcache markrepo <path> [options]
  revcache mark <ledger> [options]
  revcache cleanup <ledger> [options]

put reads one framed blob record from stdin; get writes it back to
stdout.  Key specs for missing take the form <name>@<fp>.

Options:
  -h --help          Show this screen.
  --version          Show version.
  --dir=<dir>        Cache directory; falls back to $REVCACHE_DIR, then cwd.
  --config=<file>    Settings file; default is revcache.toml in the cache dir.
  --keep=<file>      Storage keys gc must retain, one per line.
  --manifest=<file>  Working file names for mark, one per line.
`
	parser := &docopt.Parser{OptionsFirst: false}
	o, _ := parser.ParseArgs(usage, os.Args[1:], "0.0")
	var opts Opts
	err := o.Bind(&opts)
	if err != nil {
		log.Error(err)
		return 22
	}
	log.Debug(opts)

	switch true {
	case opts.Key:
		key, err := storageKey(opts)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Println(key)
	case opts.Put:
		buf, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Error(err)
			return 5
		}
		key, err := putBlob(opts, buf)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Println(key)
	case opts.Get:
		buf, err := getBlob(opts)
		if err != nil {
			log.Error(err)
			return 42
		}
		_, err = os.Stdout.Write(buf)
		if err != nil {
			log.Error(err)
			return 25
		}
	case opts.Missing:
		keys, err := missingKeys(opts)
		if err != nil {
			log.Error(err)
			return 42
		}
		for _, key := range keys {
			fmt.Println(key)
		}
	case opts.Gc:
		stats, err := collect(opts)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Println(stats)
	case opts.Compact:
		err := compact(opts)
		if err != nil {
			log.Error(err)
			return 42
		}
	case opts.Markrepo:
		err := markRepo(opts)
		if err != nil {
			log.Error(err)
			return 42
		}
	case opts.Mark:
		count, err := markEntries(opts)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Printf("marked %d entries\n", count)
	case opts.Cleanup:
		err := cleanupLedger(opts)
		if err != nil {
			log.Error(err)
			return 42
		}
	}
	return 0
}

func cachedir(flag string) (dir string) {
	dir = flag
	if dir == "" {
		dir = os.Getenv("REVCACHE_DIR")
	}
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			panic("can't get current directory")
		}
	}
	return
}

func openStore(opts Opts) (store *revcache.Store, err error) {
	dir := cachedir(opts.Dir)
	cfg, err := loadConfig(dir, opts.Config)
	if err != nil {
		return
	}
	store, err = revcache.Open(cfg)
	if err != nil {
		return
	}
	return
}

func storageKey(opts Opts) (key string, err error) {
	store, err := openStore(opts)
	if err != nil {
		return
	}
	fp, err := revcache.ParseFingerprint(opts.Fp)
	if err != nil {
		return
	}
	key = store.StorageKey(opts.Name, fp)
	return
}

func putBlob(opts Opts, buf []byte) (key string, err error) {
	store, err := openStore(opts)
	if err != nil {
		return
	}
	fp, err := revcache.ParseFingerprint(opts.Fp)
	if err != nil {
		return
	}
	err = store.Add(opts.Name, fp, buf)
	if err != nil {
		return
	}
	key = store.StorageKey(opts.Name, fp)
	return
}

func getBlob(opts Opts) (buf []byte, err error) {
	store, err := openStore(opts)
	if err != nil {
		return
	}
	fp, err := revcache.ParseFingerprint(opts.Fp)
	if err != nil {
		return
	}
	buf, presence, err := store.Get(opts.Name, fp)
	if err != nil {
		return
	}
	if presence != revcache.Found {
		err = fmt.Errorf("%s: %s", revcache.Key{Name: opts.Name, Fp: fp}, presence)
		return
	}
	return
}

func missingKeys(opts Opts) (missing []string, err error) {
	store, err := openStore(opts)
	if err != nil {
		return
	}
	var keys []revcache.Key
	for _, spec := range opts.Keyspecs {
		key, perr := parseKeySpec(spec)
		if perr != nil {
			err = perr
			return
		}
		keys = append(keys, key)
	}
	for _, key := range store.GetMissing(keys) {
		missing = append(missing, key.String())
	}
	return
}

func parseKeySpec(spec string) (key revcache.Key, err error) {
	at := strings.LastIndex(spec, "@")
	if at < 0 {
		err = fmt.Errorf("malformed key %q: want name@fingerprint", spec)
		return
	}
	fp, err := revcache.ParseFingerprint(spec[at+1:])
	if err != nil {
		return
	}
	key = revcache.Key{Name: spec[:at], Fp: fp}
	return
}

func collect(opts Opts) (stats revcache.GCStats, err error) {
	store, err := openStore(opts)
	if err != nil {
		return
	}
	keep := map[string]bool{}
	if opts.Keep != "" {
		var lines []string
		lines, err = readLines(opts.Keep)
		if err != nil {
			return
		}
		for _, line := range lines {
			keep[line] = true
		}
	}
	stats, err = store.GC(keep)
	return
}

func compact(opts Opts) (err error) {
	store, err := openStore(opts)
	if err != nil {
		return
	}
	err = store.Compact()
	return
}

func markRepo(opts Opts) (err error) {
	store, err := openStore(opts)
	if err != nil {
		return
	}
	err = store.MarkRepo(opts.Path)
	return
}

func markEntries(opts Opts) (count int, err error) {
	store, err := openStore(opts)
	if err != nil {
		return
	}
	var names []string
	if opts.Manifest != "" {
		names, err = readLines(opts.Manifest)
		if err != nil {
			return
		}
	}
	ledger := revcache.NewLedger()
	err = store.MarkLedger(&manifestSource{names: names}, ledger, nil)
	if err != nil {
		return
	}
	err = ledger.Save(opts.Ledger)
	if err != nil {
		return
	}
	count = len(ledger.Entries)
	return
}

func cleanupLedger(opts Opts) (err error) {
	store, err := openStore(opts)
	if err != nil {
		return
	}
	ledger, err := revcache.LoadLedger(opts.Ledger)
	if err != nil {
		return
	}
	err = store.Cleanup(ledger.Entries)
	return
}

// manifestSource resolves names from a flat manifest file, with no
// history to walk.
type manifestSource struct {
	names []string
}

func (m *manifestSource) ManifestNames() ([]string, error) {
	return m.names, nil
}

func (m *manifestSource) ChangedNames(fn func(names []string) (more bool)) error {
	return nil
}

func readLines(path string) (lines []string, err error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return
}
