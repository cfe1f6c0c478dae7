package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = "8000"
	DefaultBackendURL      = "http://localhost:5000/api"
	DefaultMLServiceURL    = "http://localhost:8001"
	DefaultGeminiModel     = "gemini-2.5-flash"
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultEngine          = "mlservice"
	DefaultRefreshInterval = 10 * time.Second
	DefaultListIdleTimeout = 5 * time.Minute
	DefaultCacheTTL        = 24 * time.Hour
)

type Config struct {
	Port string `yaml:"port"`

	TelegramToken string `yaml:"telegram_bot_token"`
	WebhookURL    string `yaml:"webhook_url"`

	BackendURL string  `yaml:"backend_url"`
	BackendRPS float64 `yaml:"backend_rps"`

	MLServiceURL  string `yaml:"ml_service_url"`
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	GeminiModel   string `yaml:"gemini_model"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"`
	DefaultEngine string `yaml:"default_engine"`

	RefreshInterval time.Duration `yaml:"refresh_interval"`
	ListIdleTimeout time.Duration `yaml:"list_idle_timeout"`
	CacheTTL        time.Duration `yaml:"prediction_cache_ttl"`

	LogLevel string `yaml:"log_level"`
}

func New() *Config {
	return &Config{
		Port:            DefaultPort,
		BackendURL:      DefaultBackendURL,
		MLServiceURL:    DefaultMLServiceURL,
		GeminiModel:     DefaultGeminiModel,
		OpenAIModel:     DefaultOpenAIModel,
		DefaultEngine:   DefaultEngine,
		RefreshInterval: DefaultRefreshInterval,
		ListIdleTimeout: DefaultListIdleTimeout,
		CacheTTL:        DefaultCacheTTL,
		LogLevel:        "info",
	}
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// Load starts from defaults, applies the YAML file named by CONFIG_FILE (if set),
// then environment variables.
func Load() (*Config, error) {
	cfg := New()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramToken)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.BackendURL = getEnv("BACKEND_URL", c.BackendURL)
	c.MLServiceURL = getEnv("ML_SERVICE_URL", c.MLServiceURL)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.DefaultEngine = strings.ToLower(getEnv("DEFAULT_ENGINE", c.DefaultEngine))
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	var errs []error
	if v := getEnv("BACKEND_RPS", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			errs = append(errs, fmt.Errorf("config: BACKEND_RPS=%q is not a non-negative number", v))
		} else {
			c.BackendRPS = f
		}
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"REFRESH_INTERVAL", &c.RefreshInterval},
		{"LIST_IDLE_TIMEOUT", &c.ListIdleTimeout},
		{"PREDICTION_CACHE_TTL", &c.CacheTTL},
	} {
		v := getEnv(d.key, "")
		if v == "" {
			continue
		}
		dur, err := time.ParseDuration(v)
		if err != nil || dur <= 0 {
			errs = append(errs, fmt.Errorf("config: %s=%q is not a positive duration", d.key, v))
			continue
		}
		*d.dst = dur
	}
	return errors.Join(errs...)
}

// Require reports every listed setting (by env name) that is empty.
func (c *Config) Require(keys ...string) error {
	vals := map[string]string{
		"PORT":               c.Port,
		"TELEGRAM_BOT_TOKEN": c.TelegramToken,
		"WEBHOOK_URL":        c.WebhookURL,
		"BACKEND_URL":        c.BackendURL,
		"ML_SERVICE_URL":     c.MLServiceURL,
		"GEMINI_API_KEY":     c.GeminiAPIKey,
		"GEMINI_MODEL":       c.GeminiModel,
		"OPENAI_API_KEY":     c.OpenAIAPIKey,
		"OPENAI_MODEL":       c.OpenAIModel,
		"DEFAULT_ENGINE":     c.DefaultEngine,
	}
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(vals[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Level maps LOG_LEVEL onto a slog level; unknown values mean info.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
