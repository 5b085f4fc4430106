package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tipforge.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
target: misp-core
plugin_dir: /var/www/platform/plugins
widget_dir: ./widgets
web_user: www-data
web_group: www-data
install_cmds:
  - apt-get update
  - apt-get install -y php-redis
cache_scopes:
  plugin-registry:
    - /var/www/platform/tmp/cache/models
  compiled-views:
    - /var/www/platform/tmp/cache/views
workers: 8
exec_timeout: 90s
journal: /tmp/journal.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Target != "misp-core" {
		t.Errorf("Target = %s", cfg.Target)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	if cfg.ExecTimeout.Std() != 90*time.Second {
		t.Errorf("ExecTimeout = %s", cfg.ExecTimeout.Std())
	}
	if len(cfg.InstallCmds) != 2 {
		t.Errorf("InstallCmds = %v", cfg.InstallCmds)
	}
	if len(cfg.CacheScopes["plugin-registry"]) != 1 {
		t.Errorf("CacheScopes = %v", cfg.CacheScopes)
	}
	if cfg.JournalPath != "/tmp/journal.db" {
		t.Errorf("JournalPath = %s", cfg.JournalPath)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
target: misp-core
plugin_dir: /var/www/platform/plugins
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != DefaultWorkers {
		t.Errorf("Workers = %d, want default %d", cfg.Workers, DefaultWorkers)
	}
	if cfg.ExecTimeout.Std() != DefaultExecTimeout {
		t.Errorf("ExecTimeout = %s, want default %s", cfg.ExecTimeout.Std(), DefaultExecTimeout)
	}
	if cfg.WebUser != "www-data" || cfg.WebGroup != "www-data" {
		t.Errorf("web ownership = %s:%s", cfg.WebUser, cfg.WebGroup)
	}
	if cfg.JournalPath == "" {
		t.Error("JournalPath not defaulted")
	}
}

func TestLoad_WebGroupFollowsUser(t *testing.T) {
	path := writeConfig(t, `
target: misp-core
plugin_dir: /plugins
web_user: apache
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WebGroup != "apache" {
		t.Errorf("WebGroup = %s, want apache", cfg.WebGroup)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"missing target",
			"plugin_dir: /plugins\n",
			"target",
		},
		{
			"missing plugin_dir",
			"target: misp-core\n",
			"plugin_dir",
		},
		{
			"relative plugin_dir",
			"target: misp-core\nplugin_dir: plugins\n",
			"absolute",
		},
		{
			"root cache scope dir",
			"target: misp-core\nplugin_dir: /plugins\ncache_scopes:\n  all:\n    - /\n",
			"refusing",
		},
		{
			"relative cache scope dir",
			"target: misp-core\nplugin_dir: /plugins\ncache_scopes:\n  views:\n    - tmp/cache\n",
			"absolute",
		},
		{
			"empty install command",
			"target: misp-core\nplugin_dir: /plugins\ninstall_cmds:\n  - '  '\n",
			"install_cmds",
		},
		{
			"negative workers",
			"target: misp-core\nplugin_dir: /plugins\nworkers: -2\n",
			"workers",
		},
		{
			"bad duration",
			"target: misp-core\nplugin_dir: /plugins\nexec_timeout: soon\n",
			"duration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load succeeded on a missing file")
	}
}
