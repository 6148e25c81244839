package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr bool
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty file keeps defaults",
			yaml: "",
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.API.Listen != "127.0.0.1:7766" {
					t.Errorf("api.listen = %q", cfg.API.Listen)
				}
				if cfg.Broker.SubmitTimeout != 120*time.Second {
					t.Errorf("broker.submit_timeout = %s", cfg.Broker.SubmitTimeout)
				}
				if cfg.API.MaxBodyBytes != 10<<20 {
					t.Errorf("api.max_body_bytes = %d", cfg.API.MaxBodyBytes)
				}
				if cfg.Digest == "" || cfg.SourcePath == "" {
					t.Error("source path and digest not recorded")
				}
			},
		},
		{
			name: "partial override",
			yaml: `
service:
  log_level: debug
broker:
  submit_timeout: 30s
  poll_wait: 5s
history:
  enabled: false
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.LogLevel != "debug" {
					t.Error("log_level not parsed")
				}
				if cfg.Service.LogFormat != "json" {
					t.Error("log_format default lost")
				}
				if cfg.Broker.SubmitTimeout != 30*time.Second || cfg.Broker.PollWait != 5*time.Second {
					t.Error("broker durations not parsed")
				}
				if cfg.Broker.MaxPollWait != 60*time.Second {
					t.Error("max_poll_wait default lost")
				}
				if cfg.History.Enabled {
					t.Error("history should be disabled")
				}
			},
		},
		{
			name: "env var interpolation",
			yaml: `
history:
  path: ${TB_HISTORY}
mcp:
  server_name: ${TB_SERVER}
`,
			env: map[string]string{
				"TB_HISTORY": "/tmp/history.db",
				"TB_SERVER":  "Genie",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.History.Path != "/tmp/history.db" {
					t.Errorf("history.path = %q", cfg.History.Path)
				}
				if cfg.MCP.ServerName != "Genie" {
					t.Errorf("mcp.server_name = %q", cfg.MCP.ServerName)
				}
			},
		},
		{
			name: "PORT and DAEMON_URL override",
			yaml: `
api:
  listen: 0.0.0.0:9000
`,
			env: map[string]string{
				"PORT":       "7000",
				"DAEMON_URL": "http://studio-host:7000",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.API.Listen != "0.0.0.0:7000" {
					t.Errorf("api.listen = %q", cfg.API.Listen)
				}
				if cfg.Port() != "7000" {
					t.Errorf("Port() = %q", cfg.Port())
				}
				if cfg.MCP.DaemonURL != "http://studio-host:7000" {
					t.Errorf("mcp.daemon_url = %q", cfg.MCP.DaemonURL)
				}
			},
		},
		{
			name: "unknown key rejected",
			yaml: `
plugins_dir: ./plugins
`,
			wantErr: true,
		},
		{
			name: "invalid log level",
			yaml: `
service:
  log_level: loud
`,
			wantErr: true,
		},
		{
			name: "poll wait above max",
			yaml: `
broker:
  poll_wait: 90s
`,
			wantErr: true,
		},
		{
			name: "listen without port",
			yaml: `
api:
  listen: localhost
`,
			wantErr: true,
		},
		{
			name: "daemon url must be http",
			yaml: `
mcp:
  daemon_url: ftp://example.com
`,
			wantErr: true,
		},
		{
			name: "unresolved env var in skills url",
			yaml: `
skills:
  url: ${TB_MISSING_SKILLS_URL}
`,
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			yaml:    "service: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PORT", "")
			t.Setenv("DAEMON_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yaml), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			cfg, err := Load(configPath)

			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DAEMON_URL", "")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("service:\n  name: dir\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) error = %v", err)
	}
	if cfg.Service.Name != "dir" {
		t.Errorf("service.name = %q", cfg.Service.Name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DAEMON_URL", "")
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvConfigPath, "")
	t.Chdir(t.TempDir())

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.SourcePath != "" {
		t.Errorf("expected defaults, got source %q", cfg.SourcePath)
	}

	path := filepath.Join(t.TempDir(), "env.yaml")
	if err := os.WriteFile(path, []byte("service:\n  name: from-env\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, path)

	cfg, err = LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Service.Name != "from-env" {
		t.Errorf("service.name = %q", cfg.Service.Name)
	}
}

func TestDiscoverUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvConfigPath, "")
	t.Chdir(t.TempDir())

	if got := Discover(); got != "" {
		t.Fatalf("Discover() = %q, want empty", got)
	}

	userConfig := filepath.Join(home, ".config", "toolbridge", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(userConfig), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(userConfig, []byte{}, 0644); err != nil {
		t.Fatal(err)
	}
	if got := Discover(); got != userConfig {
		t.Errorf("Discover() = %q, want %q", got, userConfig)
	}
}

func TestInterpolateEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple replacement",
			input: "path: ${TB_HOME}/data",
			env:   map[string]string{"TB_HOME": "/users/test"},
			want:  "path: /users/test/data",
		},
		{
			name:  "multiple vars",
			input: "${TB_USER}:${TB_PASS}@${TB_HOST}",
			env: map[string]string{
				"TB_USER": "admin",
				"TB_PASS": "secret",
				"TB_HOST": "localhost",
			},
			want: "admin:secret@localhost",
		},
		{
			name:  "undefined var left as is",
			input: "key: ${TB_UNDEFINED_VAR}",
			want:  "key: ${TB_UNDEFINED_VAR}",
		},
		{
			name:  "no vars",
			input: "plain text",
			want:  "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := interpolateEnv(tt.input); got != tt.want {
				t.Errorf("interpolateEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChangedAndMarshal(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DAEMON_URL", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("service:\n  name: a\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if changed, err := cfg.Changed(); err != nil || changed {
		t.Fatalf("Changed() = %v, %v before edit", changed, err)
	}
	if err := os.WriteFile(path, []byte("service:\n  name: b\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if changed, err := cfg.Changed(); err != nil || !changed {
		t.Fatalf("Changed() = %v, %v after edit", changed, err)
	}

	out, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	var back Config
	if err := decode(out, &back); err != nil {
		t.Fatalf("marshalled config does not load back: %v", err)
	}
	if back.Broker.SubmitTimeout != 120*time.Second {
		t.Errorf("round trip submit_timeout = %s", back.Broker.SubmitTimeout)
	}
}
