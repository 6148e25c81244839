package doctor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/toolbridge/internal/catalog"
	"github.com/mattjoyce/toolbridge/internal/config"
	"github.com/mattjoyce/toolbridge/internal/install"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	plugin := filepath.Join(dir, "RbxGenie.plugin.lua")
	if err := os.WriteFile(plugin, []byte("--"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults()
	cfg.State.Dir = filepath.Join(dir, "data")
	cfg.History.Path = filepath.Join(dir, "data", "history.db")
	cfg.Install.PluginSource = plugin
	return cfg
}

func fullEnv() install.Env {
	return install.Env{AppData: "/appdata", LocalAppData: "/local", Home: "/home/u"}
}

func builtin(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Builtin()
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func hasIssue(issues []Issue, category, substr string) bool {
	for _, i := range issues {
		if i.Category == category && strings.Contains(i.Message, substr) {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := New(validConfig(t), builtin(t), fullEnv()).Validate()
	if !r.Valid || len(r.Warnings) != 0 {
		t.Fatalf("expected clean result, got errors=%v warnings=%v", r.Errors, r.Warnings)
	}
	if got := FormatHuman(r); got != "Configuration valid.\n" {
		t.Fatalf("FormatHuman() = %q", got)
	}
}

func TestValidate_EmptyCatalog(t *testing.T) {
	t.Parallel()
	r := New(validConfig(t), nil, fullEnv()).Validate()
	if r.Valid || !hasIssue(r.Errors, "catalog", "empty") {
		t.Fatalf("expected catalog error, got %+v", r)
	}
}

func TestValidate_StateDirIsFile(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	if err := os.WriteFile(cfg.State.Dir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := New(cfg, builtin(t), fullEnv()).Validate()
	if r.Valid || !hasIssue(r.Errors, "state", "not a directory") {
		t.Fatalf("expected state error, got %+v", r)
	}
}

func TestValidate_ProxyPortMismatch(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.MCP.DaemonURL = "http://localhost:9000"
	r := New(cfg, builtin(t), fullEnv()).Validate()
	if !r.Valid || !hasIssue(r.Warnings, "mcp", "port 9000") {
		t.Fatalf("expected mcp warning, got %+v", r)
	}
}

func TestValidate_RemoteProxyTargetNotCompared(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.MCP.DaemonURL = "https://bridge.example.com"
	r := New(cfg, builtin(t), fullEnv()).Validate()
	if hasIssue(r.Warnings, "mcp", "port") {
		t.Fatalf("unexpected mcp warning: %+v", r.Warnings)
	}
}

func TestValidate_ExposedListener(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Listen = "0.0.0.0:7766"
	r := New(cfg, builtin(t), fullEnv()).Validate()
	if !hasIssue(r.Warnings, "api", "no authentication") {
		t.Fatalf("expected api warning, got %+v", r.Warnings)
	}
}

func TestValidate_InstallEnv(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Install.PluginSource = filepath.Join(t.TempDir(), "missing.lua")
	r := New(cfg, builtin(t), install.Env{Home: "/home/u"}).Validate()
	for _, want := range []string{"APPDATA not set", "LOCALAPPDATA not set", "not found"} {
		if !hasIssue(r.Warnings, "install", want) {
			t.Errorf("missing install warning %q in %+v", want, r.Warnings)
		}
	}
	if !r.Valid {
		t.Fatalf("install warnings must not invalidate: %+v", r.Errors)
	}
}

func TestValidate_MissingEnvVars(t *testing.T) {
	cfg := validConfig(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "skills:\n  url: https://${TOOLBRIDGE_DOCTOR_HOST}/SKILLS.md\nmcp:\n  server_name: ${TOOLBRIDGE_DOCTOR_HOST}\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.SourcePath = path

	r := New(cfg, builtin(t), fullEnv()).Validate()
	n := 0
	for _, w := range r.Warnings {
		if w.Category == "env_vars" {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("expected one env_vars warning, got %+v", r.Warnings)
	}

	t.Setenv("TOOLBRIDGE_DOCTOR_HOST", "example.com")
	r = New(cfg, builtin(t), fullEnv()).Validate()
	if hasIssue(r.Warnings, "env_vars", "TOOLBRIDGE_DOCTOR_HOST") {
		t.Fatalf("unexpected env warning once set: %+v", r.Warnings)
	}
}

func TestFormatHumanAndJSON(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "state", Field: "state.dir", Message: "bad"}},
		Warnings: []Issue{{Category: "install", Message: "skip"}},
	}
	human := FormatHuman(r)
	for _, want := range []string{
		"Configuration invalid (1 error(s), 1 warning(s))",
		"ERROR [state] state.dir: bad",
		"WARN  [install] skip",
	} {
		if !strings.Contains(human, want) {
			t.Errorf("FormatHuman missing %q:\n%s", want, human)
		}
	}

	js, err := FormatJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(js, `"valid": false`) {
		t.Fatalf("FormatJSON() = %s", js)
	}
}
