package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds the client configuration
type Config struct {
	API       APIConfig      `toml:"api"`
	Session   SessionConfig  `toml:"session"`
	Realtime  RealtimeConfig `toml:"realtime"`
	Log       LogConfig      `toml:"log"`
	Theme     string         `toml:"theme"`
	ThemesDir string         `toml:"themes_dir"`
}

// APIConfig holds REST endpoint settings
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	Server         string `toml:"server"`
	Port           int    `toml:"port"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// SessionConfig controls where the token pair is persisted
type SessionConfig struct {
	Backend            string `toml:"backend"` // file, sqlite or memory
	Path               string `toml:"path"`
	Passphrase         string `toml:"passphrase"`
	RefreshSkewSeconds int    `toml:"refresh_skew_seconds"`
}

// RealtimeConfig controls the event-stream connection
type RealtimeConfig struct {
	ReconnectMaxRetries int     `toml:"reconnect_max_retries"`
	ReconnectInitialMs  int     `toml:"reconnect_initial_ms"`
	ReconnectMaxMs      int     `toml:"reconnect_max_ms"`
	SendRate            float64 `toml:"send_rate"`
	SendBurst           int     `toml:"send_burst"`
}

// LogConfig controls logging output
type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
	File   string `toml:"file"`
}

// overrides are read from the environment after the file is loaded.
// Zero values leave the file setting alone.
type overrides struct {
	APIBaseURL        string `env:"TEAMCHAT_API_BASE_URL"`
	APIServer         string `env:"TEAMCHAT_API_SERVER"`
	APIPort           int    `env:"TEAMCHAT_API_PORT"`
	SessionBackend    string `env:"TEAMCHAT_SESSION_BACKEND"`
	SessionPath       string `env:"TEAMCHAT_SESSION_PATH"`
	SessionPassphrase string `env:"TEAMCHAT_SESSION_PASSPHRASE"`
	LogLevel          string `env:"TEAMCHAT_LOG_LEVEL"`
	LogFile           string `env:"TEAMCHAT_LOG_FILE"`
}

const defaultPort = 5002

// DefaultConfig returns the default client configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Port:           defaultPort,
			TimeoutSeconds: 10,
		},
		Session: SessionConfig{
			Backend:            "file",
			Path:               os.ExpandEnv("$HOME/.teamchat/session.json"),
			RefreshSkewSeconds: 30,
		},
		Realtime: RealtimeConfig{
			ReconnectMaxRetries: 5,
			ReconnectInitialMs:  2000,
			ReconnectMaxMs:      30000,
			SendRate:            5,
			SendBurst:           10,
		},
		Log: LogConfig{
			Level: "info",
			File:  os.ExpandEnv("$HOME/.teamchat/teamchat.log"),
		},
		Theme: "dracula",
	}
}

// DefaultPaths lists the config files tried when none is given
func DefaultPaths() []string {
	return []string{
		"./teamchat.toml",
		"./config/client.toml",
		os.ExpandEnv("$HOME/.config/teamchat/client.toml"),
	}
}

// Load builds the configuration: defaults, then the TOML file, then .env and
// environment overrides. An empty path searches DefaultPaths.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		for _, p := range DefaultPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var o overrides
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if o.APIBaseURL != "" {
		cfg.API.BaseURL = o.APIBaseURL
	}
	if o.APIServer != "" {
		cfg.API.Server = o.APIServer
	}
	if o.APIPort != 0 {
		cfg.API.Port = o.APIPort
	}
	if o.SessionBackend != "" {
		cfg.Session.Backend = o.SessionBackend
	}
	if o.SessionPath != "" {
		cfg.Session.Path = o.SessionPath
	}
	if o.SessionPassphrase != "" {
		cfg.Session.Passphrase = o.SessionPassphrase
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFile != "" {
		cfg.Log.File = o.LogFile
	}
	return nil
}

// Validate checks settings that would otherwise fail later and obscurely
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Session.Backend != "memory" && c.Session.Path == "" {
		return errors.New("session path is required")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api port %d out of range", c.API.Port)
	}
	if c.Realtime.SendBurst < 1 {
		return errors.New("realtime send_burst must be at least 1")
	}
	return nil
}

// APIBaseURL returns the REST base URL, ending in /api unless overridden
func (c *Config) APIBaseURL() string {
	if c.API.BaseURL != "" {
		return strings.TrimRight(c.API.BaseURL, "/")
	}
	return c.serverRoot() + "/api"
}

// SocketURL returns the websocket endpoint derived from the API settings
func (c *Config) SocketURL() (string, error) {
	root := c.serverRoot()
	if c.API.BaseURL != "" {
		root = strings.Replace(strings.TrimRight(c.API.BaseURL, "/"), "/api", "", 1)
	}

	u, err := url.Parse(root)
	if err != nil {
		return "", fmt.Errorf("invalid server address: %w", err)
	}

	// Ensure WebSocket scheme
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Timeout returns the REST request timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// RefreshSkew returns how early an expiring access token is refreshed
func (c *Config) RefreshSkew() time.Duration {
	return time.Duration(c.Session.RefreshSkewSeconds) * time.Second
}

func (c *Config) serverRoot() string {
	if c.API.Server != "" {
		return strings.TrimRight(c.API.Server, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.API.Port)
}
