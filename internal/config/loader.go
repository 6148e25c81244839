package config

import (
	"bytes"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. Keys absent from the file
// keep their default values. PORT and DAEMON_URL in the environment override
// the listen port and the proxy target.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg := Defaults()
	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	cfg.Digest = Digest(data)

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configPath when set, otherwise the first discovered
// config file, otherwise the defaults.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = Discover()
	}
	if configPath != "" {
		return Load(configPath)
	}

	cfg := Defaults()
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	interpolated := interpolateEnv(string(data))
	if strings.TrimSpace(interpolated) == "" {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolated)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func finish(cfg *Config) error {
	if err := applyEnvOverrides(cfg); err != nil {
		return err
	}
	if err := validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides honors the PORT and DAEMON_URL variables.
func applyEnvOverrides(cfg *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		host, _, err := net.SplitHostPort(cfg.API.Listen)
		if err != nil {
			return fmt.Errorf("api.listen %q: %w", cfg.API.Listen, err)
		}
		cfg.API.Listen = net.JoinHostPort(host, port)
	}
	if daemonURL := os.Getenv("DAEMON_URL"); daemonURL != "" {
		cfg.MCP.DaemonURL = daemonURL
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if _, port, err := net.SplitHostPort(cfg.API.Listen); err != nil || port == "" {
		return fmt.Errorf("api.listen must be host:port (got %q)", cfg.API.Listen)
	}
	if cfg.API.MaxBodyBytes <= 0 {
		return fmt.Errorf("api.max_body_bytes must be positive")
	}

	if cfg.Broker.SubmitTimeout <= 0 {
		return fmt.Errorf("broker.submit_timeout must be positive")
	}
	if cfg.Broker.PollWait <= 0 {
		return fmt.Errorf("broker.poll_wait must be positive")
	}
	if cfg.Broker.MaxPollWait < cfg.Broker.PollWait {
		return fmt.Errorf("broker.max_poll_wait (%s) must not be less than broker.poll_wait (%s)",
			cfg.Broker.MaxPollWait, cfg.Broker.PollWait)
	}

	if cfg.History.Enabled {
		if cfg.History.Path == "" {
			return fmt.Errorf("history.path is required when history is enabled")
		}
		if cfg.History.Retention < 0 {
			return fmt.Errorf("history.retention must not be negative")
		}
	}

	if cfg.State.Dir == "" {
		return fmt.Errorf("state.dir is required")
	}

	u, err := url.Parse(cfg.MCP.DaemonURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("mcp.daemon_url must be an http(s) URL (got %q)", cfg.MCP.DaemonURL)
	}
	if cfg.MCP.ServerName == "" {
		return fmt.Errorf("mcp.server_name is required")
	}

	if envVarPattern.MatchString(cfg.Skills.URL) {
		return fmt.Errorf("skills.url: environment variable ${%s} is not set",
			envVarPattern.FindStringSubmatch(cfg.Skills.URL)[1])
	}
	return nil
}

// Port returns the port part of api.listen.
func (c *Config) Port() string {
	_, port, err := net.SplitHostPort(c.API.Listen)
	if err != nil {
		return ""
	}
	return port
}
