package config

import "time"

// Config represents the complete toolbridge configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	API     APIConfig     `yaml:"api"`
	Broker  BrokerConfig  `yaml:"broker"`
	History HistoryConfig `yaml:"history"`
	State   StateConfig   `yaml:"state"`
	MCP     MCPConfig     `yaml:"mcp"`
	Install InstallConfig `yaml:"install"`
	Skills  SkillsConfig  `yaml:"skills"`

	// SourcePath is the file the config was loaded from; empty for defaults.
	SourcePath string `yaml:"-"`
	// Digest is the BLAKE3 hash of the source file, hex encoded.
	Digest string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen       string `yaml:"listen"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// BrokerConfig defines command deadlines and long-poll waits.
type BrokerConfig struct {
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	PollWait      time.Duration `yaml:"poll_wait"`
	MaxPollWait   time.Duration `yaml:"max_poll_wait"`
}

// HistoryConfig defines the command audit log.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// StateConfig defines where runtime files (PID lock) live.
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// MCPConfig defines the stdio proxy.
type MCPConfig struct {
	DaemonURL  string `yaml:"daemon_url"`
	ServerName string `yaml:"server_name"`
}

// InstallConfig defines where the Studio plugin bundle comes from.
type InstallConfig struct {
	PluginSource string `yaml:"plugin_source"`
	PluginName   string `yaml:"plugin_name"`
}

// SkillsConfig defines the skills document source.
type SkillsConfig struct {
	URL string `yaml:"url"`
}

// Defaults returns a Config with the stock settings.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "toolbridge",
			LogLevel:  "info",
			LogFormat: "json",
		},
		API: APIConfig{
			Listen:       "127.0.0.1:7766",
			MaxBodyBytes: 10 << 20,
		},
		Broker: BrokerConfig{
			SubmitTimeout: 120 * time.Second,
			PollWait:      15 * time.Second,
			MaxPollWait:   60 * time.Second,
		},
		History: HistoryConfig{
			Enabled:   true,
			Path:      "./data/history.db",
			Retention: 7 * 24 * time.Hour,
		},
		State: StateConfig{
			Dir: "./data",
		},
		MCP: MCPConfig{
			DaemonURL:  "http://127.0.0.1:7766",
			ServerName: "RbxGenie",
		},
		Install: InstallConfig{
			PluginSource: "./dist/RbxGenie.plugin.lua",
			PluginName:   "RbxGenie.lua",
		},
		Skills: SkillsConfig{
			URL: "https://raw.githubusercontent.com/nnaridz/RbxGenie/refs/heads/main/SKILLS.md",
		},
	}
}
