// Package config loads simbridge settings from the environment.
//
// Values come from SIMBRIDGE_* variables, optionally seeded from a .env file.
// Variables already set in the process environment win over the file.
// Command line flags registered with BindFlags override both.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	simerrors "github.com/wippyai/simbridge/errors"
	"github.com/wippyai/simbridge/refengine"
)

// Prefix is prepended to every variable name.
const Prefix = "SIMBRIDGE_"

// Config holds process settings.
type Config struct {
	Module           string
	Workers          int
	HeapStart        uint32
	MemoryLimitPages uint32
	LogLevel         string
	LogFormat        string
	HTTPAddr         string
	Trials           uint32
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Module:    refengine.Location,
		Workers:   1,
		HeapStart: 1024,
		LogLevel:  "info",
		LogFormat: "console",
		HTTPAddr:  ":8080",
		Trials:    10000,
	}
}

// Load reads the given .env files, or ".env" when none are named, and
// applies the environment on top of Default. A missing default .env file
// is not an error; a missing named file is.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, simerrors.Wrap(simerrors.PhaseConfig, simerrors.KindLoadFailure, err, "read env file")
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv applies variables found through lookup on top of Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(name string) (string, bool) {
		v, ok := lookup(Prefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("MODULE"); ok {
		cfg.Module = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v, ok := get("HTTP_ADDR"); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := get("WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, invalid("WORKERS", v, err)
		}
		cfg.Workers = n
	}
	for name, dst := range map[string]*uint32{
		"HEAP_START":         &cfg.HeapStart,
		"MEMORY_LIMIT_PAGES": &cfg.MemoryLimitPages,
		"TRIALS":             &cfg.Trials,
	} {
		v, ok := get(name)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, invalid(name, v, err)
		}
		*dst = uint32(n)
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.Module == "":
		return invalid("MODULE", c.Module, nil)
	case c.Workers < 1:
		return invalid("WORKERS", strconv.Itoa(c.Workers), nil)
	case c.HeapStart%4 != 0:
		return invalid("HEAP_START", strconv.FormatUint(uint64(c.HeapStart), 10), nil)
	case c.MemoryLimitPages > 65536:
		return invalid("MEMORY_LIMIT_PAGES", strconv.FormatUint(uint64(c.MemoryLimitPages), 10), nil)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return invalid("LOG_FORMAT", c.LogFormat, nil)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("LOG_LEVEL", c.LogLevel, nil)
	}
	return nil
}

// BindFlags registers flags on fs that override c when parsed.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Module, "module", c.Module, "Engine module path or URL ("+refengine.Location+" for the Go reference engine)")
	fs.IntVar(&c.Workers, "workers", c.Workers, "Number of workers")
	fs.Func("heap-start", fmt.Sprintf("First allocator offset (default %d)", c.HeapStart), uintFlag(&c.HeapStart))
	fs.Func("memory-limit", "Engine memory limit in 64KiB pages (0 = runtime default)", uintFlag(&c.MemoryLimitPages))
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: console or json")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP listen address")
	fs.Func("trials", fmt.Sprintf("Default trial count (default %d)", c.Trials), uintFlag(&c.Trials))
}

func uintFlag(dst *uint32) func(string) error {
	return func(s string) error {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return err
		}
		*dst = uint32(n)
		return nil
	}
}

func invalid(name, value string, cause error) error {
	return simerrors.New(simerrors.PhaseConfig, simerrors.KindInvalidInput).
		Path(Prefix + name).
		Value(value).
		Cause(cause).
		Detail("invalid value %q", value).
		Build()
}
