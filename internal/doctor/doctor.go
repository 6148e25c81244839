// Package doctor runs pre-flight checks over a loaded toolbridge config:
// things that parse fine but will not work at runtime.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattjoyce/toolbridge/internal/catalog"
	"github.com/mattjoyce/toolbridge/internal/config"
	"github.com/mattjoyce/toolbridge/internal/install"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor checks a config against the tool catalog and the install
// environment.
type Doctor struct {
	cfg   *config.Config
	tools *catalog.Catalog
	env   install.Env
}

// New creates a Doctor. tools may be nil when the catalog failed to load.
func New(cfg *config.Config, tools *catalog.Catalog, env install.Env) *Doctor {
	return &Doctor{cfg: cfg, tools: tools, env: env}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateCatalog(r)
	d.validatePaths(r)
	d.validateProxyTarget(r)
	d.warnExposedListener(r)
	d.warnTimeouts(r)
	d.warnInstallEnv(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateCatalog(r *Result) {
	if d.tools == nil || d.tools.Len() == 0 {
		d.addError(r, "catalog", "", "tool catalog is empty; the MCP proxy would expose nothing")
	}
}

// validatePaths checks that runtime paths are not occupied by the wrong kind
// of file. Missing paths are fine; they are created on start.
func (d *Doctor) validatePaths(r *Result) {
	if info, err := os.Stat(d.cfg.State.Dir); err == nil && !info.IsDir() {
		d.addError(r, "state", "state.dir", fmt.Sprintf("%s exists and is not a directory", d.cfg.State.Dir))
	}
	if !d.cfg.History.Enabled {
		return
	}
	if info, err := os.Stat(d.cfg.History.Path); err == nil && info.IsDir() {
		d.addError(r, "history", "history.path", fmt.Sprintf("%s is a directory", d.cfg.History.Path))
	}
	if info, err := os.Stat(filepath.Dir(d.cfg.History.Path)); err == nil && !info.IsDir() {
		d.addError(r, "history", "history.path", fmt.Sprintf("parent of %s is not a directory", d.cfg.History.Path))
	}
	if d.cfg.History.Retention == 0 {
		d.addWarning(r, "history", "history.retention", "retention is 0; the audit log is never pruned")
	}
}

// validateProxyTarget flags an MCP proxy pointed at a different local port
// than the daemon listens on.
func (d *Doctor) validateProxyTarget(r *Result) {
	u, err := url.Parse(d.cfg.MCP.DaemonURL)
	if err != nil {
		d.addError(r, "mcp", "mcp.daemon_url", err.Error())
		return
	}
	if !isLoopback(u.Hostname()) {
		return
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	if listenPort := d.cfg.Port(); listenPort != "" && listenPort != port {
		d.addWarning(r, "mcp", "mcp.daemon_url",
			fmt.Sprintf("proxy targets port %s but api.listen uses port %s", port, listenPort))
	}
}

// warnExposedListener warns when the unauthenticated API leaves loopback.
func (d *Doctor) warnExposedListener(r *Result) {
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		return
	}
	if !isLoopback(host) {
		d.addWarning(r, "api", "api.listen",
			fmt.Sprintf("listening on %q; the API has no authentication and anyone who can reach it can run tools", d.cfg.API.Listen))
	}
}

func (d *Doctor) warnTimeouts(r *Result) {
	b := d.cfg.Broker
	if b.MaxPollWait >= b.SubmitTimeout {
		d.addWarning(r, "broker", "broker.max_poll_wait",
			fmt.Sprintf("max_poll_wait (%s) is not shorter than submit_timeout (%s)", b.MaxPollWait, b.SubmitTimeout))
	}
}

// warnInstallEnv reports what `toolbridge install` would skip.
func (d *Doctor) warnInstallEnv(r *Result) {
	if d.env.AppData == "" {
		d.addWarning(r, "install", "", "APPDATA not set; Claude Desktop will not be configured")
	}
	if d.env.LocalAppData == "" {
		d.addWarning(r, "install", "", "LOCALAPPDATA not set; the Studio plugin will not be installed")
	}
	if _, err := os.Stat(d.cfg.Install.PluginSource); err != nil {
		d.addWarning(r, "install", "install.plugin_source",
			fmt.Sprintf("plugin bundle %s not found", d.cfg.Install.PluginSource))
	}
	if !strings.HasPrefix(d.cfg.Skills.URL, "https://") {
		d.addWarning(r, "skills", "skills.url", "skills.url is not https")
	}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// warnMissingEnvVars warns about ${VAR} references in the config file whose
// variable is unset; they are kept verbatim by the loader.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	if d.cfg.SourcePath == "" {
		return
	}
	data, err := os.ReadFile(d.cfg.SourcePath)
	if err != nil {
		return
	}
	seen := make(map[string]bool)
	for _, m := range envVarRe.FindAllStringSubmatch(string(data), -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := os.LookupEnv(name); !ok {
			d.addWarning(r, "env_vars", "", fmt.Sprintf("environment variable ${%s} not set", name))
		}
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
	} else {
		fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
	}
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
