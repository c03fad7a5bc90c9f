// Package config loads playbyte.toml and applies PLAYBYTE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"playbyte/interfaces"
	"playbyte/system"
)

const FileName = "playbyte.toml"

type Config struct {
	// DataRoot holds bytes/, cache/, romdb/ and overrides.yaml.
	DataRoot      string   `toml:"data_root"`
	CoresRoot     string   `toml:"cores_root"`
	RomRoots      []string `toml:"rom_roots"`
	RomExtensions []string `toml:"rom_extensions"`
	DatabasePaths []string `toml:"database_paths"`

	Match MatchConfig `toml:"match"`
	Scan  ScanConfig  `toml:"scan"`
	Store StoreConfig `toml:"store"`
	Web   WebConfig   `toml:"web"`
	Log   LogConfig   `toml:"log"`
}

type MatchConfig struct {
	Metric           string   `toml:"metric"`
	Threshold        float64  `toml:"threshold"`
	PreferredRegions []string `toml:"preferred_regions"`
	WatchOverrides   bool     `toml:"watch_overrides"`
}

type ScanConfig struct {
	Workers int  `toml:"workers"`
	Watch   bool `toml:"watch"`
}

type StoreConfig struct {
	// StateCacheBytes bounds the decompressed state cache.
	StateCacheBytes int64 `toml:"state_cache_bytes"`
	PrefetchAhead   int   `toml:"prefetch_ahead"`
}

type WebConfig struct {
	ListenHost  string `toml:"listen_host"`
	ListenPort  int    `toml:"listen_port"`
	BrowserHost string `toml:"browser_host"`
	OpenBrowser bool   `toml:"open_browser"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns a configuration rooted at dataRoot.
func Default(dataRoot string) *Config {
	return &Config{
		DataRoot:      dataRoot,
		CoresRoot:     filepath.Join(dataRoot, "cores"),
		RomRoots:      []string{filepath.Join(dataRoot, "roms")},
		RomExtensions: system.AllExtensions(),
		Match: MatchConfig{
			Metric:           "blend",
			Threshold:        0.8,
			PreferredRegions: []string{"USA", "World", "Europe"},
			WatchOverrides:   true,
		},
		Scan: ScanConfig{
			Workers: runtime.NumCPU(),
			Watch:   true,
		},
		Store: StoreConfig{
			StateCacheBytes: 64 << 20,
			PrefetchAhead:   2,
		},
		Web: WebConfig{
			ListenHost:  "127.0.0.1",
			ListenPort:  27638,
			BrowserHost: "127.0.0.1",
			OpenBrowser: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	dataRoot, err := defaultDataRoot()
	if err != nil {
		return nil, err
	}
	cfg := Default(dataRoot)

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.expand()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath is playbyte.toml in the user's config directory.
func DefaultPath() (string, error) {
	dir, err := interfaces.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

func defaultDataRoot() (string, error) {
	dir, err := interfaces.ConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: could not find configuration directory: %w", err)
	}
	return dir, nil
}

// ApplyEnvOverrides applies PLAYBYTE_* variables on top of the file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PLAYBYTE_DATA_ROOT"); v != "" {
		c.DataRoot = v
	}
	if v := os.Getenv("PLAYBYTE_CORES_ROOT"); v != "" {
		c.CoresRoot = v
	}
	if v := os.Getenv("PLAYBYTE_ROM_ROOTS"); v != "" {
		c.RomRoots = filepath.SplitList(v)
	}
	if v := os.Getenv("PLAYBYTE_DATABASES"); v != "" {
		c.DatabasePaths = filepath.SplitList(v)
	}
	if v := os.Getenv("PLAYBYTE_MATCH_METRIC"); v != "" {
		c.Match.Metric = v
	}
	if v := os.Getenv("PLAYBYTE_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Match.Threshold = f
		}
	}
	if v := os.Getenv("PLAYBYTE_SCAN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scan.Workers = n
		}
	}
	if v, ok := os.LookupEnv("PLAYBYTE_SCAN_WATCH"); ok {
		c.Scan.Watch = interfaces.IsTruthy(v)
	}
	if v := os.Getenv("PLAYBYTE_WEB_LISTEN_HOST"); v != "" {
		c.Web.ListenHost = v
	}
	if v := os.Getenv("PLAYBYTE_WEB_LISTEN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Web.ListenPort = n
		}
	}
	if v := os.Getenv("PLAYBYTE_WEB_BROWSER_HOST"); v != "" {
		c.Web.BrowserHost = v
	}
	if v, ok := os.LookupEnv("PLAYBYTE_WEB_OPEN_BROWSER"); ok {
		c.Web.OpenBrowser = interfaces.IsTruthy(v)
	}
	if v := os.Getenv("PLAYBYTE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) expand() {
	c.DataRoot = expandHome(c.DataRoot)
	c.CoresRoot = expandHome(c.CoresRoot)
	for i := range c.RomRoots {
		c.RomRoots[i] = expandHome(c.RomRoots[i])
	}
	for i := range c.DatabasePaths {
		c.DatabasePaths[i] = expandHome(c.DatabasePaths[i])
	}
	for i, ext := range c.RomExtensions {
		c.RomExtensions[i] = strings.ToLower(strings.TrimPrefix(ext, "."))
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DataRoot == "" {
		return errors.New("config: data_root must be set")
	}
	if c.Match.Threshold <= 0 || c.Match.Threshold > 1 {
		return fmt.Errorf("config: match.threshold must be in (0, 1], got %v", c.Match.Threshold)
	}
	if c.Match.Metric == "" {
		return errors.New("config: match.metric must be set")
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("config: scan.workers must be positive, got %d", c.Scan.Workers)
	}
	if c.Web.ListenPort <= 0 || c.Web.ListenPort > 65535 {
		return fmt.Errorf("config: web.listen_port out of range: %d", c.Web.ListenPort)
	}
	for _, ext := range c.RomExtensions {
		if system.FromExtension(ext) == system.Unknown {
			return fmt.Errorf("config: rom extension %q has no known system", ext)
		}
	}
	return nil
}

func (c *Config) BytesDir() string      { return filepath.Join(c.DataRoot, "bytes") }
func (c *Config) HashCacheDir() string  { return filepath.Join(c.DataRoot, "cache", "hashes") }
func (c *Config) DatabaseDir() string   { return filepath.Join(c.DataRoot, "romdb") }
func (c *Config) OverridesPath() string { return filepath.Join(c.DataRoot, "overrides.yaml") }

// Databases lists the explicit database paths plus any .dat files in DatabaseDir.
func (c *Config) Databases() []string {
	paths := append([]string(nil), c.DatabasePaths...)
	matches, _ := filepath.Glob(filepath.Join(c.DatabaseDir(), "*.dat"))
	return append(paths, matches...)
}

// ListenAddr is host:port for the feed view server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Web.ListenHost, c.Web.ListenPort)
}

func (c *Config) BrowserURL() string {
	return fmt.Sprintf("http://%s:%d/", c.Web.BrowserHost, c.Web.ListenPort)
}
