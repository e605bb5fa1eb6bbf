package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration for the trading client.
type Config struct {
	APIBaseURL     string        // REST backend, e.g. https://bot.example.com/api
	WSURL          string        // push channel endpoint, e.g. wss://bot.example.com/ws
	RequestTimeout time.Duration // per-request HTTP timeout
	PollInterval   time.Duration // poller cycle interval
	ConfirmWindow  time.Duration // fallback confirmation window if the server omits expires_at

	CredentialDir string // badger directory for the credential store
	JournalPath   string // sqlite file for the local order journal

	LogLevel   string
	LogFile    string
	LogMaxSize int // MB

	RateLimit int // outbound requests per second; 0 disables throttling
}

// ConfigFile mirrors the on-disk YAML/JSON layout.
type ConfigFile struct {
	API struct {
		BaseURL   string `yaml:"base_url" json:"base_url"`
		WSURL     string `yaml:"ws_url" json:"ws_url"`
		TimeoutMS int    `yaml:"timeout_ms" json:"timeout_ms"`
		RateLimit int    `yaml:"rate_limit" json:"rate_limit"`
	} `yaml:"api" json:"api"`
	Poll struct {
		IntervalMS int `yaml:"interval_ms" json:"interval_ms"`
	} `yaml:"poll" json:"poll"`
	Confirm struct {
		WindowSeconds int `yaml:"window_seconds" json:"window_seconds"`
	} `yaml:"confirm" json:"confirm"`
	Storage struct {
		CredentialDir string `yaml:"credential_dir" json:"credential_dir"`
		JournalPath   string `yaml:"journal_path" json:"journal_path"`
	} `yaml:"storage" json:"storage"`
	LogLevel   string `yaml:"log_level" json:"log_level"`
	LogFile    string `yaml:"log_file" json:"log_file"`
	LogMaxSize int    `yaml:"log_max_size" json:"log_max_size"`
}

// Defaults returns a config with sane local-development values.
func Defaults() *Config {
	return &Config{
		APIBaseURL:     "http://localhost:8080/api",
		WSURL:          "ws://localhost:8080/ws",
		RequestTimeout: 10 * time.Second,
		PollInterval:   5 * time.Second,
		ConfirmWindow:  60 * time.Second,
		CredentialDir:  "data/credentials",
		JournalPath:    "data/journal.db",
		LogLevel:       "info",
		LogMaxSize:     100,
	}
}

// Load reads the file at path (YAML or JSON by extension), then applies
// environment overrides. An empty path yields defaults + env only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		var file ConfigFile
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			err = json.Unmarshal(data, &file)
		default:
			err = yaml.Unmarshal(data, &file)
		}
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		applyFile(cfg, &file)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, file *ConfigFile) {
	if file.API.BaseURL != "" {
		cfg.APIBaseURL = file.API.BaseURL
	}
	if file.API.WSURL != "" {
		cfg.WSURL = file.API.WSURL
	}
	if file.API.TimeoutMS > 0 {
		cfg.RequestTimeout = time.Duration(file.API.TimeoutMS) * time.Millisecond
	}
	if file.API.RateLimit > 0 {
		cfg.RateLimit = file.API.RateLimit
	}
	if file.Poll.IntervalMS > 0 {
		cfg.PollInterval = time.Duration(file.Poll.IntervalMS) * time.Millisecond
	}
	if file.Confirm.WindowSeconds > 0 {
		cfg.ConfirmWindow = time.Duration(file.Confirm.WindowSeconds) * time.Second
	}
	if file.Storage.CredentialDir != "" {
		cfg.CredentialDir = file.Storage.CredentialDir
	}
	if file.Storage.JournalPath != "" {
		cfg.JournalPath = file.Storage.JournalPath
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.LogFile != "" {
		cfg.LogFile = file.LogFile
	}
	if file.LogMaxSize > 0 {
		cfg.LogMaxSize = file.LogMaxSize
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TRADEBOARD_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("TRADEBOARD_WS_URL"); v != "" {
		cfg.WSURL = v
	}
	if ms := envInt("TRADEBOARD_TIMEOUT_MS"); ms > 0 {
		cfg.RequestTimeout = time.Duration(ms) * time.Millisecond
	}
	if ms := envInt("TRADEBOARD_POLL_INTERVAL_MS"); ms > 0 {
		cfg.PollInterval = time.Duration(ms) * time.Millisecond
	}
	if n := envInt("TRADEBOARD_RATE_LIMIT"); n > 0 {
		cfg.RateLimit = n
	}
	if v := os.Getenv("TRADEBOARD_CREDENTIAL_DIR"); v != "" {
		cfg.CredentialDir = v
	}
	if v := os.Getenv("TRADEBOARD_JOURNAL_PATH"); v != "" {
		cfg.JournalPath = v
	}
	if v := os.Getenv("TRADEBOARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TRADEBOARD_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("config: api base_url is required")
	}
	if strings.TrimSpace(c.WSURL) == "" {
		return fmt.Errorf("config: ws_url is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll interval must be positive")
	}
	return nil
}
