// Package config handles tipforge.yaml parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML string parsing ("30s", "2m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents a tipforge.yaml manifest.
type Config struct {
	// Target is the name or ID of the platform container.
	Target string `yaml:"target"`

	// PluginDir is the dashboard widget directory inside the container.
	PluginDir string `yaml:"plugin_dir"`

	// WidgetDir is the local directory holding widget sources to deploy.
	WidgetDir string `yaml:"widget_dir,omitempty"`

	// WebUser and WebGroup own deployed plugin files inside the container.
	WebUser  string `yaml:"web_user,omitempty"`
	WebGroup string `yaml:"web_group,omitempty"`

	// InstallCmds are shell commands run inside the container by the
	// dependency-installation phase, in order.
	InstallCmds []string `yaml:"install_cmds,omitempty"`

	// CacheScopes maps a cache scope name to the container directories
	// cleared when a phase declares the scope as mutated.
	CacheScopes map[string][]string `yaml:"cache_scopes,omitempty"`

	// Workers bounds patch-engine concurrency across independent files.
	Workers int `yaml:"workers,omitempty"`

	// ExecTimeout is the default timeout for remote commands.
	ExecTimeout Duration `yaml:"exec_timeout,omitempty"`

	// JournalPath is the SQLite journal location on the host.
	JournalPath string `yaml:"journal,omitempty"`
}

// Defaults applied by Load when fields are omitted.
const (
	DefaultWorkers     = 4
	DefaultExecTimeout = 60 * time.Second
)

// DefaultJournalPath returns the default journal location, ~/.tipforge/journal.db.
func DefaultJournalPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".tipforge", "journal.db")
	}
	return filepath.Join(homeDir, ".tipforge", "journal.db")
}

// Load reads tipforge.yaml from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if cfg.Target == "" {
		return nil, fmt.Errorf("%s: 'target' is required (container name or ID)", path)
	}
	if cfg.PluginDir == "" {
		return nil, fmt.Errorf("%s: 'plugin_dir' is required", path)
	}
	if !strings.HasPrefix(cfg.PluginDir, "/") {
		return nil, fmt.Errorf("%s: 'plugin_dir' must be an absolute container path, got %q", path, cfg.PluginDir)
	}

	for scope, dirs := range cfg.CacheScopes {
		if scope == "" {
			return nil, fmt.Errorf("%s: cache_scopes key cannot be empty", path)
		}
		if len(dirs) == 0 {
			return nil, fmt.Errorf("%s: cache_scopes.%s lists no directories", path, scope)
		}
		for _, dir := range dirs {
			if !strings.HasPrefix(dir, "/") {
				return nil, fmt.Errorf("%s: cache_scopes.%s: %q is not an absolute container path", path, scope, dir)
			}
			// Refuse scope dirs that could wipe the filesystem root.
			if filepath.Clean(dir) == "/" {
				return nil, fmt.Errorf("%s: cache_scopes.%s: refusing to manage %q", path, scope, dir)
			}
		}
	}

	for i, cmd := range cfg.InstallCmds {
		if strings.TrimSpace(cmd) == "" {
			return nil, fmt.Errorf("%s: install_cmds[%d] is empty", path, i)
		}
	}

	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("%s: 'workers' must be positive, got %d", path, cfg.Workers)
	}
	if cfg.ExecTimeout == 0 {
		cfg.ExecTimeout = Duration(DefaultExecTimeout)
	}
	if cfg.WebUser == "" {
		cfg.WebUser = "www-data"
	}
	if cfg.WebGroup == "" {
		cfg.WebGroup = cfg.WebUser
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = DefaultJournalPath()
	}

	return &cfg, nil
}
