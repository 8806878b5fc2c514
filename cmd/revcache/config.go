package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/t7a/revcache"
)

// fileConfig is the revcache.toml schema.  Every key has a default, so
// a missing file just means defaults plus REVCACHE_* environment
// overrides.
type fileConfig struct {
	RepoName   string `mapstructure:"reponame"`
	Shared     bool   `mapstructure:"shared"`
	Validate   string `mapstructure:"validate"`
	CorruptLog string `mapstructure:"corruptlog"`
	CacheLimit string `mapstructure:"cachelimit"`
	Retention  string `mapstructure:"retention"`
	PacksDir   string `mapstructure:"packsdir"`
	CacheGroup string `mapstructure:"cachegroup"`
}

func loadConfig(dir, file string) (cfg revcache.Config, err error) {
	v := viper.New()
	v.SetDefault("reponame", "")
	v.SetDefault("shared", false)
	v.SetDefault("validate", "on")
	v.SetDefault("corruptlog", "")
	v.SetDefault("cachelimit", "1000 GB")
	v.SetDefault("retention", "24h")
	v.SetDefault("packsdir", "packs")
	v.SetDefault("cachegroup", "")
	v.SetEnvPrefix("revcache")
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("revcache")
		v.SetConfigType("toml")
		v.AddConfigPath(dir)
	}
	if rerr := v.ReadInConfig(); rerr != nil {
		// a named file must exist; the searched-for default is optional
		if file != "" {
			err = errors.Wrapf(rerr, "config %s", file)
			return
		}
		if _, ok := rerr.(viper.ConfigFileNotFoundError); !ok {
			err = errors.Wrapf(rerr, "config in %s", dir)
			return
		}
	}

	var fc fileConfig
	err = v.Unmarshal(&fc)
	if err != nil {
		return
	}
	limit, err := parseByteSize(fc.CacheLimit)
	if err != nil {
		err = errors.Wrapf(err, "cachelimit")
		return
	}
	retention, err := time.ParseDuration(fc.Retention)
	if err != nil {
		err = errors.Wrapf(err, "retention")
		return
	}

	cfg = revcache.Config{
		Dir:        dir,
		RepoName:   fc.RepoName,
		Shared:     fc.Shared,
		Validate:   revcache.ParseValidateMode(fc.Validate),
		CorruptLog: fc.CorruptLog,
		CacheBytes: limit,
		Retention:  retention,
		PacksDir:   fc.PacksDir,
		CacheGroup: fc.CacheGroup,
	}
	return
}

// suffix check order matters: "kb"/"mb"/"gb" must hit before bare "b".
var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"m", 1 << 20},
	{"k", 1 << 10},
	{"g", 1 << 30},
	{"kb", 1 << 10},
	{"mb", 1 << 20},
	{"gb", 1 << 30},
	{"b", 1},
}

// parseByteSize converts humane size strings like "1000 GB" or "4.5m"
// into a byte count.  Suffixes are binary multiples.
func parseByteSize(s string) (n int64, err error) {
	t := strings.ToLower(strings.TrimSpace(s))
	for _, unit := range sizeUnits {
		if !strings.HasSuffix(t, unit.suffix) {
			continue
		}
		num := strings.TrimSpace(strings.TrimSuffix(t, unit.suffix))
		f, ferr := strconv.ParseFloat(num, 64)
		if ferr != nil {
			return 0, errors.Wrapf(ferr, "size %q", s)
		}
		return int64(f * float64(unit.mult)), nil
	}
	n, err = strconv.ParseInt(t, 10, 64)
	if err != nil {
		err = errors.Wrapf(err, "size %q", s)
	}
	return
}
