// Package config loads eejs2py.toml, the optional project configuration.
//
// Example:
//
//	[modules]
//	dir = ".modules"
//	base_url = "https://storage.googleapis.com/ee-sources"
//	source = "git"
//	timeout = "30s"
//	jobs = 8
//
//	[translate]
//	formatter = true
//	formatter_cmd = ["black", "-q", "-"]
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/eejs2py/eejs2py/remote"
	"github.com/eejs2py/eejs2py/transpile"
)

// FileName is the configuration file looked up from the working directory.
const FileName = "eejs2py.toml"

// Config is the decoded configuration file.
type Config struct {
	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`

	Modules   Modules   `toml:"modules"`
	Translate Translate `toml:"translate"`
}

// Modules configures the module cache and how modules are fetched.
type Modules struct {
	Dir       string   `toml:"dir"`
	BaseURL   string   `toml:"base_url"`
	Extension string   `toml:"extension"`
	Source    string   `toml:"source"` // "http" or "git"
	GitBase   string   `toml:"git_base"`
	Timeout   Duration `toml:"timeout"`
	Jobs      int      `toml:"jobs"`
	Lock      bool     `toml:"lock"`
}

// Translate configures the translator.
type Translate struct {
	Formatter    bool     `toml:"formatter"`
	FormatterCmd []string `toml:"formatter_cmd"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Modules: Modules{
			BaseURL: remote.DefaultBaseURL,
			Source:  "http",
			GitBase: remote.DefaultGitBase,
			Timeout: Duration{30 * time.Second},
			Jobs:    4,
		},
	}
}

// Find looks for FileName in startDir and its parents.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load reads path over the defaults. Unknown keys are errors, and a
// relative modules.dir is taken relative to the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.Path = path

	switch cfg.Modules.Source {
	case "http", "git":
	default:
		return nil, fmt.Errorf("%s: modules.source must be \"http\" or \"git\", got %q", path, cfg.Modules.Source)
	}
	if cfg.Modules.Jobs < 1 {
		return nil, fmt.Errorf("%s: modules.jobs must be at least 1", path)
	}
	if meta.IsDefined("modules", "dir") && cfg.Modules.Dir != "" && !filepath.IsAbs(cfg.Modules.Dir) {
		cfg.Modules.Dir = filepath.Join(filepath.Dir(path), cfg.Modules.Dir)
	}
	if meta.IsDefined("translate", "formatter_cmd") && len(cfg.Translate.FormatterCmd) == 0 {
		return nil, fmt.Errorf("%s: translate.formatter_cmd is empty", path)
	}
	return cfg, nil
}

// Discover loads the file found from startDir, or the defaults.
func Discover(startDir string) (*Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// ModuleDir returns the cache root: flag, then EEJS2PY_MODULE_DIR, then
// modules.dir, then the per-user default.
func (c *Config) ModuleDir(flag string) (string, error) {
	if flag == "" && os.Getenv("EEJS2PY_MODULE_DIR") == "" {
		flag = c.Modules.Dir
	}
	return remote.CacheRoot(flag)
}

// Fetcher builds the configured module fetcher.
func (c *Config) Fetcher() remote.Fetcher {
	h := remote.NewHTTPFetcher(c.Modules.BaseURL, c.Modules.Timeout.Duration)
	h.Extension = c.Modules.Extension
	if c.Modules.Source == "git" {
		return remote.NewGitFetcher(c.Modules.GitBase, h)
	}
	return h
}

// Formatter returns the configured formatter command, black by default.
func (c *Config) Formatter() transpile.Formatter {
	if len(c.Translate.FormatterCmd) == 0 {
		return transpile.Black()
	}
	return &transpile.CommandFormatter{Command: c.Translate.FormatterCmd[0], Args: c.Translate.FormatterCmd[1:]}
}
