package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIConfig points the client at the backend.
type APIConfig struct {
	// BaseURL is the API root, including any path prefix such as "/api".
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds every non-streaming request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// StreamConfig controls the notification stream consumer.
type StreamConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	ReconnectDelaySec int  `mapstructure:"reconnect_delay_sec" yaml:"reconnect_delay_sec"`
}

// ProxyConfig controls the local file proxy server.
type ProxyConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`

	// File is where log output goes. The TUI owns stdout, so this
	// defaults to a file next to the config.
	File string `mapstructure:"file" yaml:"file"`
}

// StorageConfig locates the local SQLite database.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MailboxConfig enables reading OTP codes from an IMAP inbox.
type MailboxConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Host          string `mapstructure:"host" yaml:"host"`
	Port          int    `mapstructure:"port" yaml:"port"`
	Username      string `mapstructure:"username" yaml:"username"`
	TLS           bool   `mapstructure:"tls" yaml:"tls"`
	SubjectFilter string `mapstructure:"subject_filter" yaml:"subject_filter"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Stream  StreamConfig  `mapstructure:"stream" yaml:"stream"`
	Proxy   ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Mailbox MailboxConfig `mapstructure:"mailbox" yaml:"mailbox"`
}

// Timeout returns the API timeout as a duration.
func (c APIConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// ReconnectDelay returns the stream reconnect delay as a duration.
func (c StreamConfig) ReconnectDelay() time.Duration {
	if c.ReconnectDelaySec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ReconnectDelaySec) * time.Second
}

// ConfigDir returns ~/.config/costdesk, falling back to the working
// directory when the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "costdesk")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/costdesk/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:8080/api",
			TimeoutSec: 30,
		},
		Stream: StreamConfig{
			Enabled:           true,
			ReconnectDelaySec: 5,
		},
		Proxy: ProxyConfig{
			Addr: "127.0.0.1:8787",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			File:   filepath.Join(dir, "costdesk.log"),
		},
		Storage: StorageConfig{
			Path: filepath.Join(dir, "local.db"),
		},
		Mailbox: MailboxConfig{
			Port:          993,
			TLS:           true,
			SubjectFilter: "verification code",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with COSTDESK_ override file values
// (COSTDESK_API_BASE_URL overrides api.base_url). A missing file yields
// the defaults with overrides applied.
func LoadConfig(path string) (*AppConfig, error) {
	def := DefaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("COSTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.timeout_sec", def.API.TimeoutSec)
	v.SetDefault("stream.enabled", def.Stream.Enabled)
	v.SetDefault("stream.reconnect_delay_sec", def.Stream.ReconnectDelaySec)
	v.SetDefault("proxy.addr", def.Proxy.Addr)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("storage.path", def.Storage.Path)
	v.SetDefault("mailbox.enabled", def.Mailbox.Enabled)
	v.SetDefault("mailbox.host", def.Mailbox.Host)
	v.SetDefault("mailbox.port", def.Mailbox.Port)
	v.SetDefault("mailbox.username", def.Mailbox.Username)
	v.SetDefault("mailbox.tls", def.Mailbox.TLS)
	v.SetDefault("mailbox.subject_filter", def.Mailbox.SubjectFilter)

	if err := v.ReadInConfig(); err != nil {
		_, missing := err.(*os.PathError)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !missing && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("stream", cfg.Stream)
	v.Set("proxy", cfg.Proxy)
	v.Set("log", cfg.Log)
	v.Set("storage", cfg.Storage)
	v.Set("mailbox", cfg.Mailbox)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
