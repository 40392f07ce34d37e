// Package config provides configuration parsing and validation for Kerr
// endpoints.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete endpoint configuration.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Sessions SessionsConfig `yaml:"sessions"`
	Limits   LimitsConfig   `yaml:"limits"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// AgentConfig contains identity and listener settings.
type AgentConfig struct {
	DataDir    string `yaml:"data_dir"`   // "" selects an ephemeral identity
	ListenAddr string `yaml:"listen_addr"`
	RelayURL   string `yaml:"relay_url"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
}

// SessionsConfig toggles and tunes the five session kinds.
type SessionsConfig struct {
	Shell        ShellConfig        `yaml:"shell"`
	FileTransfer FileTransferConfig `yaml:"file_transfer"`
	FileBrowser  FileBrowserConfig  `yaml:"file_browser"`
	TcpRelay     TcpRelayConfig     `yaml:"tcp_relay"`
	Ping         PingConfig         `yaml:"ping"`
}

type ShellConfig struct {
	Enabled bool `yaml:"enabled"`
}

type FileTransferConfig struct {
	Enabled             bool  `yaml:"enabled"`
	ChunkSize           int   `yaml:"chunk_size"`
	RateLimitBytesPerSec int64 `yaml:"rate_limit_bytes_per_sec"` // 0 = unlimited
	VerifyChecksum      bool  `yaml:"verify_checksum"`
}

// FileBrowserConfig optionally restricts the browser session to a root
// directory. The wire protocol carries absolute paths regardless; when
// Root is set, every request is rejected unless its path is contained
// within Root.
type FileBrowserConfig struct {
	Enabled bool   `yaml:"enabled"`
	Root    string `yaml:"root"`
}

type TcpRelayConfig struct {
	Enabled     bool          `yaml:"enabled"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type PingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LimitsConfig holds size limits. They are parsed and validated, but no
// other package reads them; the limits in effect are the package
// constants (wire.MaxFrameSize, shell.DefaultOutputBuffer,
// tcprelay.StreamBufferSize, browser.MaxReadFileSize).
type LimitsConfig struct {
	MaxFrameSize           int `yaml:"max_frame_size"`
	ShellOutputBufferBytes int `yaml:"shell_output_buffer_bytes"`
	RelayStreamBufferBytes int `yaml:"relay_stream_buffer_bytes"`
	MaxBrowserReadFile     int `yaml:"max_browser_read_file"`
}

// TimeoutsConfig holds timeout values. They are parsed and validated, but
// no other package reads them; the timeouts in effect are the package
// constants (e.g. mux.HandshakeTimeout, wire.IdleReadTimeout,
// shell.GracefulShutdownWait). The TCP relay dial timeout used by serve
// is Sessions.TcpRelay.DialTimeout.
type TimeoutsConfig struct {
	Connect          time.Duration `yaml:"connect"`
	Handshake        time.Duration `yaml:"handshake"`
	TcpDial          time.Duration `yaml:"tcp_dial"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	FrameReadIdle    time.Duration `yaml:"frame_read_idle"`
}

// Default returns a Config with the defaults named throughout the design.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			DataDir:    "",
			ListenAddr: "0.0.0.0:0",
			LogLevel:   "info",
			LogFormat:  "text",
		},
		Sessions: SessionsConfig{
			Shell:        ShellConfig{Enabled: true},
			FileTransfer: FileTransferConfig{Enabled: true, ChunkSize: 64 * 1024, VerifyChecksum: true},
			FileBrowser:  FileBrowserConfig{Enabled: true, Root: ""},
			TcpRelay:     TcpRelayConfig{Enabled: true, DialTimeout: 5 * time.Second},
			Ping:         PingConfig{Enabled: true},
		},
		Limits: LimitsConfig{
			MaxFrameSize:           16 * 1024 * 1024,
			ShellOutputBufferBytes: 64 * 1024,
			RelayStreamBufferBytes: 256 * 1024,
			MaxBrowserReadFile:     16 * 1024 * 1024,
		},
		Timeouts: TimeoutsConfig{
			Connect:          30 * time.Second,
			Handshake:        10 * time.Second,
			TcpDial:          5 * time.Second,
			GracefulShutdown: 2 * time.Second,
			FrameReadIdle:    30 * time.Second,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, starting from Default()
// and overlaying whatever the document sets.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !isValidLogLevel(c.Agent.LogLevel) {
		errs = append(errs, fmt.Sprintf("invalid log_level: %s (must be debug, info, warn, or error)", c.Agent.LogLevel))
	}
	if !isValidLogFormat(c.Agent.LogFormat) {
		errs = append(errs, fmt.Sprintf("invalid log_format: %s (must be text or json)", c.Agent.LogFormat))
	}

	if c.Sessions.FileTransfer.ChunkSize <= 0 {
		errs = append(errs, "sessions.file_transfer.chunk_size must be positive")
	}
	if c.Sessions.FileTransfer.RateLimitBytesPerSec < 0 {
		errs = append(errs, "sessions.file_transfer.rate_limit_bytes_per_sec must not be negative")
	}

	if c.Limits.MaxFrameSize <= 0 {
		errs = append(errs, "limits.max_frame_size must be positive")
	}
	if c.Limits.MaxBrowserReadFile <= 0 {
		errs = append(errs, "limits.max_browser_read_file must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// String returns a YAML representation of the config, suitable for
// startup logging; there is no sensitive data left to redact once
// identity loading moved to a PEM file handled entirely by internal/identity.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<config marshal error: %v>", err)
	}
	return string(data)
}
