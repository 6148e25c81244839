package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mattjoyce/toolbridge/internal/catalog"
	"github.com/mattjoyce/toolbridge/internal/history"
	"github.com/mattjoyce/toolbridge/internal/install"
	"github.com/mattjoyce/toolbridge/internal/log"
	"github.com/mattjoyce/toolbridge/internal/mcpproxy"
	"github.com/mattjoyce/toolbridge/internal/skills"
	"github.com/mattjoyce/toolbridge/internal/storage"
	"github.com/mattjoyce/toolbridge/internal/tui"
	"github.com/mattjoyce/toolbridge/internal/tui/watch"
)

func runMCP(args []string) int {
	fs, configPath := newFlagSet("mcp")
	daemonURL := fs.String("daemon-url", "", "Override mcp.daemon_url")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}
	if *daemonURL != "" {
		cfg.MCP.DaemonURL = *daemonURL
	}

	// stdout carries the protocol.
	log.SetupWriter(os.Stderr, cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("mcp")

	tools, err := catalog.Builtin()
	if err != nil {
		logger.Error("load catalog", "error", err)
		return 1
	}

	client := mcpproxy.NewDaemonClient(cfg.MCP.DaemonURL, cfg.Broker.SubmitTimeout)
	server := mcpproxy.NewServer(tools, client, mcpproxy.Options{
		Name:    cfg.MCP.ServerName,
		Version: version,
		Logger:  logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("MCP proxy running on stdio", "daemon", cfg.MCP.DaemonURL, "tools", tools.Len())
	if err := mcpproxy.Run(ctx, server); err != nil && ctx.Err() == nil {
		logger.Error("MCP server stopped", "error", err)
		return 1
	}
	return 0
}

func runInstall(args []string) int {
	fs, configPath := newFlagSet("install")
	command := fs.String("command", "", "Executable the MCP client launches (default: this binary)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}

	exe := *command
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot resolve executable: %v\n", err)
			return 1
		}
	}
	mcpArgs := []string{"mcp"}
	if cfg.SourcePath != "" {
		mcpArgs = append(mcpArgs, "--config", cfg.SourcePath)
	}

	pluginSource, err := filepath.Abs(cfg.Install.PluginSource)
	if err != nil {
		pluginSource = cfg.Install.PluginSource
	}

	inst := install.New(install.FromOS(), install.Options{
		ServerName:   cfg.MCP.ServerName,
		Command:      exe,
		Args:         mcpArgs,
		PluginSource: pluginSource,
		PluginName:   cfg.Install.PluginName,
	}, os.Stdout)

	if _, err := inst.Run(); err != nil {
		return 1
	}
	return 0
}

func runSkills(args []string) int {
	fs, configPath := newFlagSet("skills")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}

	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}
	path, err := downloadSkills(cfg.Skills.URL, dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create SKILLS.md: %v\n", err)
		return 1
	}
	fmt.Printf("Created: %s\n", path)
	return 0
}

func downloadSkills(url, dir string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	return skills.Download(ctx, &http.Client{}, url, dir)
}

func runHistory(args []string) int {
	fs, configPath := newFlagSet("history")
	limit := fs.IntP("limit", "n", 20, "Number of commands to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}
	if !cfg.History.Enabled {
		fmt.Fprintln(os.Stderr, "History is disabled (history.enabled: false)")
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.History.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history: %v\n", err)
		return 1
	}
	defer db.Close()

	records, err := history.NewStore(db).Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}
	if len(records) == 0 {
		fmt.Println("No commands recorded yet.")
		return 0
	}
	fmt.Println(historyTable(records))
	return 0
}

func historyTable(records []history.Record) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SUBMITTED", "ID", "TOOL", "STATE", "ELAPSED", "ERROR")
	for _, r := range records {
		elapsed := "-"
		if r.ElapsedMs != nil {
			elapsed = strconv.FormatInt(*r.ElapsedMs, 10) + "ms"
		}
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		t.Row(r.SubmittedAt.Local().Format("2006-01-02 15:04:05"), id, r.Tool, r.State, elapsed, r.Error)
	}
	return t.Render()
}

func runWatch(args []string) int {
	fs, configPath := newFlagSet("watch")
	apiURL := fs.String("url", "", "Daemon URL (default mcp.daemon_url)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}
	if *apiURL == "" {
		*apiURL = cfg.MCP.DaemonURL
	}

	if err := watch.Run(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// runMenu shows the start menu until the user starts the daemon or exits.
func runMenu(args []string) int {
	fs, configPath := newFlagSet("menu")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}

	title := cfg.MCP.ServerName + " Daemon"
	notice := ""
	for {
		choice, dir, err := tui.RunMenu(title, notice)
		if err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			return 1
		}
		switch choice {
		case tui.ChoiceStart:
			return startDaemon(cfg)
		case tui.ChoiceSkills:
			path, err := downloadSkills(cfg.Skills.URL, dir)
			if err != nil {
				notice = fmt.Sprintf("Failed to create SKILLS.md: %v", err)
			} else {
				notice = "Created: " + path
			}
		default:
			return 0
		}
	}
}
