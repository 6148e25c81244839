package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/toolbridge/internal/config"
	"github.com/mattjoyce/toolbridge/internal/lock"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout, oldStderr := os.Stdout, os.Stderr
	stdoutR, stdoutW, err := os.Pipe()
	require.NoError(t, err)
	stderrR, stderrW, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout, os.Stderr = stdoutW, stderrW

	outCh := make(chan []byte, 1)
	errCh := make(chan []byte, 1)
	go func() { b, _ := io.ReadAll(stdoutR); outCh <- b }()
	go func() { b, _ := io.ReadAll(stderrR); errCh <- b }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout, os.Stderr = oldStdout, oldStderr

	return code, string(<-outCh), string(<-errCh)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()
	origVersion, origCommit, origBuildDate := version, gitCommit, buildDate
	version, gitCommit, buildDate = v, commit, built
	t.Cleanup(func() {
		version, gitCommit, buildDate = origVersion, origCommit, origBuildDate
	})
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunVersion(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef0123", "2026-03-01T10:20:30+02:00")

	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI([]string{"version"}) })
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "toolbridge 1.2.3")
	assert.Contains(t, stdout, "commit: 0123456789ab")
	assert.Contains(t, stdout, "built_at: 2026-03-01T08:20:30Z")

	code, stdout, _ = captureOutputWithExitCode(t, func() int { return runCLI([]string{"version", "--json"}) })
	require.Equal(t, 0, code)
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "1.2.3", info.Version)
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int { return runCLI([]string{"frobnicate"}) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: frobnicate")
	assert.Contains(t, stdout, "Usage:")
}

func TestRunCLIHelp(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI([]string{"help"}) })
	assert.Equal(t, 0, code)
	for _, noun := range []string{"serve", "mcp", "install", "skills", "history", "watch", "menu", "config show"} {
		assert.Contains(t, stdout, noun)
	}
}

func TestConfigFlagHelp(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int { return runCLI([]string{"history", "--help"}) })
	assert.Equal(t, 0, code)
	assert.Contains(t, stderr, "Path to configuration file")
	assert.NotContains(t, stderr, "directory")
}

func TestRunConfigShow(t *testing.T) {
	path := writeConfig(t, "service:\n  log_level: debug\nmcp:\n  server_name: Bridge\n")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "show", "--config", path})
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "log_level: debug")
	assert.Contains(t, stdout, "server_name: Bridge")
	assert.Contains(t, stderr, "# source: ")
}

func TestRunConfigShowInvalid(t *testing.T) {
	path := writeConfig(t, "service:\n  log_level: loud\n")

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "show", "-c", path})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "log_level")
}

func TestRunSkills(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "# Skills")
	}))
	defer srv.Close()

	path := writeConfig(t, "skills:\n  url: "+srv.URL+"/SKILLS.md\n")
	dir := t.TempDir()

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"skills", "--config", path, dir})
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Created: ")

	data, err := os.ReadFile(filepath.Join(dir, "SKILLS.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Skills", string(data))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Service.LogLevel = "error"
	cfg.State.Dir = dir
	cfg.History.Path = filepath.Join(dir, "history.db")
	cfg.Broker.SubmitTimeout = 5 * time.Second
	cfg.Broker.PollWait = 2 * time.Second
	return cfg
}

func startServe(t *testing.T, cfg *config.Config) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, ln) }()

	base := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	return base, cancel, done
}

func postJSON(t *testing.T, url, body string) map[string]any {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServeRoundTripAndHistory(t *testing.T) {
	cfg := testConfig(t)
	base, cancel, done := startServe(t, cfg)

	toolResp := make(chan map[string]any, 1)
	go func() {
		resp, err := http.Post(base+"/tool/get_services", "application/json", bytes.NewReader(nil))
		if err != nil {
			toolResp <- map[string]any{"transport": err.Error()}
			return
		}
		defer resp.Body.Close()
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		toolResp <- out
	}()

	resp, err := http.Get(base + "/poll")
	require.NoError(t, err)
	var poll map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&poll))
	resp.Body.Close()
	require.Equal(t, true, poll["hasCommand"])
	assert.Equal(t, "get_services", poll["tool"])

	ack := postJSON(t, base+"/result", fmt.Sprintf(`{"id":%q,"result":["Workspace"]}`, poll["id"]))
	assert.Equal(t, true, ack["ok"])

	select {
	case out := <-toolResp:
		assert.Equal(t, true, out["ok"])
		assert.Equal(t, []any{"Workspace"}, out["result"])
	case <-time.After(5 * time.Second):
		t.Fatal("tool call did not return")
	}

	// a second daemon on the same state dir is refused
	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	err = serve(context.Background(), cfg, ln2)
	assert.True(t, errors.Is(err, lock.ErrLocked), "got %v", err)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}

	// the recorder flushed on shutdown; history reads the same file
	cfgPath := writeConfig(t, fmt.Sprintf("state:\n  dir: %s\nhistory:\n  path: %s\n", cfg.State.Dir, cfg.History.Path))
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"history", "--config", cfgPath, "--json"})
	})
	require.Equal(t, 0, code, stderr)
	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "get_services", records[0]["tool"])
	assert.Equal(t, "completed", records[0]["state"])
}

func TestServeWithoutHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Enabled = false
	base, cancel, done := startServe(t, cfg)

	resp, err := http.Get(base + "/history")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)
	_, err = os.Stat(cfg.History.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestHistoryDisabled(t *testing.T) {
	path := writeConfig(t, "history:\n  enabled: false\n")
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"history", "--config", path})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "History is disabled")
}

func TestRunConfigCheck(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, fmt.Sprintf("state:\n  dir: %s\nmcp:\n  daemon_url: http://127.0.0.1:9999\n", dir))

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path})
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Configuration valid")
	assert.Contains(t, stdout, "proxy targets port 9999")
}
