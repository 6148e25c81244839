package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/mattjoyce/toolbridge/internal/catalog"
	"github.com/mattjoyce/toolbridge/internal/config"
	"github.com/mattjoyce/toolbridge/internal/doctor"
	"github.com/mattjoyce/toolbridge/internal/install"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		return runMenu(nil)
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "serve", "start":
		return runServe(args)
	case "mcp":
		return runMCP(args)
	case "install":
		return runInstall(args)
	case "skills":
		return runSkills(args)
	case "history":
		return runHistory(args)
	case "watch":
		return runWatch(args)
	case "menu":
		return runMenu(args)
	case "config":
		return runConfigNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`toolbridge - correlation broker between AI tool callers and a polling Studio plugin

Usage:
  toolbridge [command] [flags]

Commands:
  serve             Run the broker daemon in the foreground (alias: start)
  mcp               Serve the tool catalog over MCP on stdio, forwarding to the daemon
  install           Register the MCP proxy with Claude Desktop / Cursor and install the plugin
  skills [dir]      Download SKILLS.md into dir (default .)
  history           Show recently finished commands from the audit log
  watch             Live command monitor TUI
  menu              Interactive start menu (default with no command)
  config show       Print the effective configuration
  config check      Pre-flight checks of ports and paths
  version           Show version information
  help              Show this help message

Most commands accept --config <path>. Without it $TOOLBRIDGE_CONFIG,
~/.config/toolbridge/config.yaml and ./config.yaml are tried, then defaults.
`)
}

// newFlagSet returns a flag set carrying the shared --config flag.
func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	configPath := fs.StringP("config", "c", "", "Path to configuration file")
	return fs, configPath
}

// parseFlags reports whether the command should continue, and its exit code
// when it should not.
func parseFlags(fs *pflag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, false
		}
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1, false
	}
	return 0, true
}

func loadConfig(path string) (*config.Config, bool) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, false
	}
	return cfg, true
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := pflag.NewFlagSet("version", pflag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: toolbridge version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("toolbridge %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

func runConfigNoun(args []string) int {
	if len(args) < 1 || args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		fmt.Println("Usage: toolbridge config show|check [--config PATH] [--json]")
		return 0
	}
	switch args[0] {
	case "show":
		return runConfigShow(args[1:])
	case "check":
		return runConfigCheck(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runConfigShow(args []string) int {
	fs, configPath := newFlagSet("config show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}

	if cfg.SourcePath != "" {
		fmt.Fprintf(os.Stderr, "# source: %s (blake3 %s)\n", cfg.SourcePath, shortDigest(cfg.Digest))
	} else {
		fmt.Fprintln(os.Stderr, "# source: built-in defaults")
	}

	if *jsonOut {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}
	data, err := cfg.Marshal()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func runConfigCheck(args []string) int {
	fs, configPath := newFlagSet("config check")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}

	tools, err := catalog.Builtin()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Catalog error: %v\n", err)
	}
	result := doctor.New(cfg, tools, install.FromOS()).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}
	if !result.Valid {
		return 1
	}
	return 0
}
