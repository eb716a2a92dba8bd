package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents runtime configuration for the service and the terminal client.
type Config struct {
	BasicConfig     BasicConfig               `json:"basic_config"`
	Providers       map[string]ProviderConfig `json:"providers"`
	Databases       map[string]DatabaseConfig `json:"databases"`
	Redis           RedisConfig               `json:"redis"`
	Transliteration TransliterationConfig     `json:"transliteration"`
	Client          ClientConfig              `json:"client"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type BasicConfig struct {
	ServerAddress     string   `json:"server_address"`
	Provider          string   `json:"provider"`
	Database          string   `json:"database"`
	LogLevel          string   `json:"log_level"`
	MinWorkers        int      `json:"min_workers"`
	MaxWorkers        int      `json:"max_workers"`
	QueueSize         int      `json:"queue_size"`
	WorkerIdleTimeout int      `json:"worker_idle_timeout"` // minutes
	RequestTimeout    int      `json:"request_timeout"`     // seconds
	RateLimit         int      `json:"rate_limit"`          // chat requests per minute per client IP, 0 disables
	AllowedOrigins    []string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type TransliterationConfig struct {
	Endpoint string `json:"endpoint"`
	Timeout  int    `json:"timeout"`   // seconds
	CacheTTL int    `json:"cache_ttl"` // minutes
}

type ClientConfig struct {
	BackendURL   string `json:"backend_url"`
	Language     string `json:"language"`
	VoiceTimeout int    `json:"voice_timeout"` // seconds
	Speak        bool   `json:"speak"`
}

const (
	defaultProvider       = "gemini"
	defaultGeminiModel    = "gemini-flash-latest"
	defaultServerAddress  = ":5000"
	defaultRequestTimeout = 60
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.applyDefaults(filepath.Dir(absPath)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults(baseDir string) error {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = defaultServerAddress
	}
	if b.Provider == "" {
		b.Provider = defaultProvider
	}
	b.Provider = strings.ToLower(b.Provider)
	if b.Database == "" {
		b.Database = "sqlite3"
	}
	if b.LogLevel == "" {
		b.LogLevel = "info"
	}
	if b.MinWorkers <= 0 {
		b.MinWorkers = 1
	}
	if b.MaxWorkers < b.MinWorkers {
		b.MaxWorkers = b.MinWorkers * 4
	}
	if b.QueueSize <= 0 {
		b.QueueSize = 64
	}
	if b.WorkerIdleTimeout <= 0 {
		b.WorkerIdleTimeout = 5
	}
	if b.RequestTimeout <= 0 {
		b.RequestTimeout = defaultRequestTimeout
	}

	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	if _, ok := c.Providers[defaultProvider]; !ok && b.Provider == defaultProvider {
		c.Providers[defaultProvider] = ProviderConfig{Model: defaultGeminiModel}
	}
	for name, p := range c.Providers {
		if p.APIKey == "" {
			p.APIKey = os.Getenv(strings.ToUpper(name) + "_API_KEY")
		}
		if p.Model == "" && name == defaultProvider {
			p.Model = defaultGeminiModel
		}
		c.Providers[name] = p
	}
	if _, ok := c.Providers[b.Provider]; !ok {
		return fmt.Errorf("provider %s not configured", b.Provider)
	}

	// sqlite paths are resolved relative to the config file, like the rest of the file's paths.
	if db, ok := c.Databases["sqlite3"]; ok && db.DSN != "" && db.DSN != ":memory:" &&
		!strings.HasPrefix(db.DSN, "file:") && !filepath.IsAbs(db.DSN) {
		db.DSN = filepath.Join(baseDir, db.DSN)
		c.Databases["sqlite3"] = db
	}

	if c.Transliteration.Timeout <= 0 {
		c.Transliteration.Timeout = 5
	}
	if c.Transliteration.CacheTTL <= 0 {
		c.Transliteration.CacheTTL = 24 * 60
	}
	if c.Client.BackendURL == "" {
		c.Client.BackendURL = "http://localhost" + b.ServerAddress
		if !strings.HasPrefix(b.ServerAddress, ":") {
			c.Client.BackendURL = "http://" + b.ServerAddress
		}
	}
	if c.Client.VoiceTimeout <= 0 {
		c.Client.VoiceTimeout = 5
	}
	return nil
}

// Provider returns the selected provider name and its settings.
func (c *Config) Provider() (string, ProviderConfig) {
	name := c.BasicConfig.Provider
	return name, c.Providers[name]
}

// RequestTimeout bounds one model call.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.BasicConfig.RequestTimeout) * time.Second
}

// WorkerIdleTimeout is how long a surplus worker waits before exiting.
func (c *Config) WorkerIdleTimeout() time.Duration {
	return time.Duration(c.BasicConfig.WorkerIdleTimeout) * time.Minute
}

// TransliterationTimeout bounds one transliteration call.
func (c *Config) TransliterationTimeout() time.Duration {
	return time.Duration(c.Transliteration.Timeout) * time.Second
}

// TransliterationCacheTTL is how long converted text stays cached.
func (c *Config) TransliterationCacheTTL() time.Duration {
	return time.Duration(c.Transliteration.CacheTTL) * time.Minute
}

// VoiceTimeout is the listening window of the terminal client.
func (c *Config) VoiceTimeout() time.Duration {
	return time.Duration(c.Client.VoiceTimeout) * time.Second
}
