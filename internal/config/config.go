// Package config loads and validates bridge configuration.
//
// Configuration lives in .ccbridge/config.yaml inside the git work tree,
// read through viper so CCB_* environment variables override file values.
// The author map is a separate users.toml next to it, since it is shared
// between sites and edited by hand.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Dir is the per-repo configuration directory, relative to the git work
// tree root.
const Dir = ".ccbridge"

// Config is the bridge configuration for one repository.
type Config struct {
	// View is the ClearCase view root directory. Required.
	View string `mapstructure:"view" yaml:"view"`

	// GitDir is the git work tree root. Defaults to the directory the
	// config was loaded from.
	GitDir string `mapstructure:"gitdir" yaml:"gitdir"`

	// Branches selects the ClearCase branches to follow, e.g.
	// ["main", "project_dev"]. At least one is required.
	Branches []string `mapstructure:"branches" yaml:"branches"`

	// Branch is the local branch the importer maintains.
	Branch string `mapstructure:"branch" yaml:"branch"`

	// Include restricts bridged elements to matching globs; empty means
	// the whole view.
	Include []string `mapstructure:"include" yaml:"include,omitempty"`

	// Exclude drops matching elements.
	Exclude []string `mapstructure:"exclude" yaml:"exclude,omitempty"`

	// Since bounds the first import. Accepts RFC3339, YYYY-MM-DD, or
	// natural phrases like "last monday"; see ParseSince.
	Since string `mapstructure:"since" yaml:"since,omitempty"`

	// TieBreak orders equal-timestamp versions: "backend" or "path".
	TieBreak string `mapstructure:"tiebreak" yaml:"tiebreak,omitempty"`

	// MailSuffix synthesizes author emails for users missing from
	// users.toml.
	MailSuffix string `mapstructure:"mail-suffix" yaml:"mail-suffix,omitempty"`

	// LogFile receives engine logs, rotated. Empty logs to stderr only.
	LogFile string `mapstructure:"log-file" yaml:"log-file,omitempty"`

	// DashboardAddr is the listen address of the event dashboard.
	DashboardAddr string `mapstructure:"dashboard-addr" yaml:"dashboard-addr,omitempty"`

	// PollInterval is the daemon's fallback poll cadence.
	PollInterval time.Duration `mapstructure:"poll-interval" yaml:"poll-interval,omitempty"`

	// Debounce is how long the daemon waits after view activity before
	// importing.
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce,omitempty"`

	dir string
}

// Defaults applied when the file or environment does not set a value.
const (
	DefaultBranch       = "master"
	DefaultTieBreak     = "backend"
	DefaultPollInterval = 5 * time.Minute
	DefaultDebounce     = 30 * time.Second
)

// Load reads configuration for the repo rooted at dir. Environment
// variables prefixed CCB_ override file values (CCB_VIEW, CCB_BRANCH,
// ...). The file must exist; run init first.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, Dir, "config.yaml")

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvPrefix("CCB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees environment values for bound keys.
	for _, key := range []string{"view", "gitdir", "branch", "since", "tiebreak", "mail-suffix", "log-file", "dashboard-addr"} {
		v.MustBindEnv(key)
	}

	v.SetDefault("gitdir", dir)
	v.SetDefault("branch", DefaultBranch)
	v.SetDefault("tiebreak", DefaultTieBreak)
	v.SetDefault("poll-interval", DefaultPollInterval)
	v.SetDefault("debounce", DefaultDebounce)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.dir = filepath.Join(dir, Dir)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.View == "" {
		return fmt.Errorf("view is required")
	}
	if len(c.Branches) == 0 {
		return fmt.Errorf("at least one entry in branches is required")
	}
	if c.TieBreak != "backend" && c.TieBreak != "path" {
		return fmt.Errorf("tiebreak: %q is invalid (valid values: backend, path)", c.TieBreak)
	}
	return nil
}

// CachePath is the correspondence cache database location.
func (c *Config) CachePath() string {
	return filepath.Join(c.dir, "cache.db")
}

// LockDir is the per-branch lock directory.
func (c *Config) LockDir() string {
	return filepath.Join(c.dir, "locks")
}

// UsersPath is the author map location.
func (c *Config) UsersPath() string {
	return filepath.Join(c.dir, "users.toml")
}

// Init writes a fresh config.yaml under dir, failing if one exists.
func Init(dir string, cfg *Config) error {
	cfgDir := filepath.Join(dir, Dir)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(cfgDir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
