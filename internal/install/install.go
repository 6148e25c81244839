// Package install registers the MCP proxy with desktop AI clients and copies
// the Studio plugin bundle into place.
package install

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// Env is the slice of the environment the installer reads.
type Env struct {
	AppData      string // %APPDATA%, Claude Desktop config root
	LocalAppData string // %LOCALAPPDATA%, Roblox plugin root
	Home         string
}

// FromOS reads Env from the process environment.
func FromOS() Env {
	home, _ := os.UserHomeDir()
	return Env{
		AppData:      os.Getenv("APPDATA"),
		LocalAppData: os.Getenv("LOCALAPPDATA"),
		Home:         home,
	}
}

// Options describes what gets installed.
type Options struct {
	ServerName   string   // key under mcpServers
	Command      string   // executable the client launches
	Args         []string // arguments, normally ["mcp"]
	PluginSource string
	PluginName   string
}

// Installer writes client config files and the plugin bundle, reporting
// each step to Out.
type Installer struct {
	env  Env
	opts Options
	out  io.Writer
}

// New creates an Installer. A nil out discards the report.
func New(env Env, opts Options, out io.Writer) *Installer {
	if out == nil {
		out = io.Discard
	}
	if len(opts.Args) == 0 {
		opts.Args = []string{"mcp"}
	}
	return &Installer{env: env, opts: opts, out: out}
}

// ClaudeConfigPath is the Claude Desktop config file, or "" when APPDATA is unset.
func (i *Installer) ClaudeConfigPath() string {
	if i.env.AppData == "" {
		return ""
	}
	return filepath.Join(i.env.AppData, "Claude", "claude_desktop_config.json")
}

// CursorConfigPath is the Cursor MCP config file, or "" without a home dir.
func (i *Installer) CursorConfigPath() string {
	if i.env.Home == "" {
		return ""
	}
	return filepath.Join(i.env.Home, ".cursor", "mcp.json")
}

// PluginDestPath is where Studio loads local plugins from, or "" when
// LOCALAPPDATA is unset.
func (i *Installer) PluginDestPath() string {
	if i.env.LocalAppData == "" {
		return ""
	}
	return filepath.Join(i.env.LocalAppData, "Roblox", "Plugins", i.opts.PluginName)
}

// Run performs every step and returns how many items were configured.
// Individual step failures are reported and skipped; the error is the
// joined set of them.
func (i *Installer) Run() (int, error) {
	fmt.Fprintf(i.out, "\n[%s Installer]\n\n", i.opts.ServerName)

	var (
		installed int
		errs      []error
	)
	step := func(ok bool, err error) {
		if err != nil {
			fmt.Fprintf(i.out, "  [FAIL] %v\n", err)
			errs = append(errs, err)
			return
		}
		if ok {
			installed++
		}
	}

	if path := i.ClaudeConfigPath(); path != "" {
		fmt.Fprintln(i.out, "Claude Desktop:")
		step(i.InjectMCPConfig(path, "Claude Desktop"))
	} else {
		fmt.Fprintln(i.out, "Claude Desktop: [SKIP] APPDATA not set")
	}

	if path := i.CursorConfigPath(); path != "" {
		fmt.Fprintln(i.out, "Cursor:")
		step(i.InjectMCPConfig(path, "Cursor"))
	}

	fmt.Fprintln(i.out, "\nRoblox Studio Plugin:")
	step(i.InstallPlugin())

	fmt.Fprintf(i.out, "\nDone (%d items configured)\n", installed)
	if installed > 0 {
		fmt.Fprintln(i.out, "  Restart Claude Desktop / Cursor and Roblox Studio to apply changes.")
	}
	return installed, errors.Join(errs...)
}

// InjectMCPConfig sets mcpServers.<ServerName> in the JSON file at path,
// keeping every other key. Comments and trailing commas are tolerated on
// read; a file that still cannot be parsed is replaced.
func (i *Installer) InjectMCPConfig(path, label string) (bool, error) {
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil || doc == nil {
			fmt.Fprintf(i.out, "  [WARN] Could not parse %s config, creating new one\n", label)
			doc = map[string]any{}
		}
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("read %s config: %w", label, err)
	}

	servers, ok := doc["mcpServers"].(map[string]any)
	if !ok {
		servers = map[string]any{}
	}
	servers[i.opts.ServerName] = map[string]any{
		"command": i.opts.Command,
		"args":    i.opts.Args,
	}
	doc["mcpServers"] = servers

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode %s config: %w", label, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create %s config dir: %w", label, err)
	}
	if err := writeFileAtomic(path, out); err != nil {
		return false, fmt.Errorf("write %s config: %w", label, err)
	}
	fmt.Fprintf(i.out, "  ✓ %s config updated: %s\n", label, path)
	return true, nil
}

// InstallPlugin copies the plugin bundle into the Studio plugins folder.
// A missing bundle or LOCALAPPDATA is a skip, not an error.
func (i *Installer) InstallPlugin() (bool, error) {
	src := i.opts.PluginSource
	if _, err := os.Stat(src); err != nil {
		fmt.Fprintf(i.out, "  [SKIP] Plugin bundle not found at %s\n", src)
		return false, nil
	}
	dest := i.PluginDestPath()
	if dest == "" {
		fmt.Fprintln(i.out, "  [SKIP] LOCALAPPDATA not set, cannot install plugin")
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, fmt.Errorf("create plugin dir: %w", err)
	}
	if err := copyFile(src, dest); err != nil {
		return false, fmt.Errorf("copy plugin: %w", err)
	}
	fmt.Fprintf(i.out, "  ✓ Plugin installed: %s\n", dest)
	return true, nil
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return writeFileAtomic(dest, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
