package config

import (
	"errors"
	"fmt"
	"log"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "COMPETITION_SCANNER_CONFIG"
	logLevelEnv       = "LOG_LEVEL"
	searchAPIKeyEnv   = "SEARCH_API_KEY"
	searchEngineEnv   = "SEARCH_ENGINE_ID"
	searchKeywordEnv  = "SEARCH_KEYWORD"
	ocrEndpointEnv    = "OCR_ENDPOINT"
	ocrSecretEnv      = "OCR_SECRET_KEY"
	watsonxURLEnv     = "WATSONX_URL"
	watsonxAPIKeyEnv  = "WATSONX_API_KEY"
	watsonxProjectEnv = "WATSONX_PROJECT_ID"
	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	metricsAddrEnv    = "METRICS_ADDR"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Search        SearchConfig       `yaml:"search"`
	OCR           OCRConfig          `yaml:"ocr"`
	Inference     InferenceConfig    `yaml:"inference"`
	Extraction    ExtractionConfig   `yaml:"extraction"`
	Database      DatabaseConfig     `yaml:"database"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig sets the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SchedulerConfig defines the pause between batch runs.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// SearchConfig describes the Google Custom Search integration.
type SearchConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	APIKey       string        `yaml:"apiKey"`
	EngineID     string        `yaml:"engineId"`
	Keyword      string        `yaml:"keyword"`
	Timeout      time.Duration `yaml:"timeout"`
	PageFallback bool          `yaml:"pageFallback"`
}

// OCRConfig describes the CLOVA OCR invoke URL and secret.
type OCRConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	SecretKey string        `yaml:"secretKey"`
	Format    string        `yaml:"format"`
	Timeout   time.Duration `yaml:"timeout"`
}

// InferenceConfig describes the watsonx.ai text generation call.
type InferenceConfig struct {
	URL          string        `yaml:"url"`
	IAMEndpoint  string        `yaml:"iamEndpoint"`
	APIKey       string        `yaml:"apiKey"`
	ProjectID    string        `yaml:"projectId"`
	ModelID      string        `yaml:"modelId"`
	Version      string        `yaml:"version"`
	MinNewTokens int           `yaml:"minNewTokens"`
	MaxNewTokens int           `yaml:"maxNewTokens"`
	StopSequence string        `yaml:"stopSequence"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ExtractionConfig toggles the advisory label audit.
type ExtractionConfig struct {
	AuditLabels bool `yaml:"auditLabels"`
}

// DatabaseConfig describes the relational store and its reconnect policy.
type DatabaseConfig struct {
	Driver            string        `yaml:"driver"`
	DSN               string        `yaml:"dsn"`
	Table             string        `yaml:"table"`
	ConnectTimeout    time.Duration `yaml:"connectTimeout"`
	ReconnectAttempts int           `yaml:"reconnectAttempts"`
	ReconnectDelay    time.Duration `yaml:"reconnectDelay"`
	RecordSourceURL   bool          `yaml:"recordSourceUrl"`
	AutoMigrate       bool          `yaml:"autoMigrate"`
}

// PipelineConfig holds per-item pacing.
type PipelineConfig struct {
	ItemDelay time.Duration `yaml:"itemDelay"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot read .env: %v", err)
	}

	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg := Default()
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	overrides := map[string]*string{
		logLevelEnv:       &c.Logging.Level,
		searchAPIKeyEnv:   &c.Search.APIKey,
		searchEngineEnv:   &c.Search.EngineID,
		searchKeywordEnv:  &c.Search.Keyword,
		ocrEndpointEnv:    &c.OCR.Endpoint,
		ocrSecretEnv:      &c.OCR.SecretKey,
		watsonxURLEnv:     &c.Inference.URL,
		watsonxAPIKeyEnv:  &c.Inference.APIKey,
		watsonxProjectEnv: &c.Inference.ProjectID,
		databaseDriverEnv: &c.Database.Driver,
		databaseDSNEnv:    &c.Database.DSN,
		metricsAddrEnv:    &c.Metrics.Addr,
		telegramTokenEnv:  &c.Notifications.Telegram.BotToken,
		telegramChatIDEnv: &c.Notifications.Telegram.ChatID,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
}

// Validate reports missing credentials and nonsensical limits.
func (c Config) Validate() error {
	var missing []string
	required := map[string]string{
		"search.apiKey":       c.Search.APIKey,
		"search.engineId":     c.Search.EngineID,
		"search.keyword":      c.Search.Keyword,
		"ocr.endpoint":        c.OCR.Endpoint,
		"ocr.secretKey":       c.OCR.SecretKey,
		"inference.url":       c.Inference.URL,
		"inference.apiKey":    c.Inference.APIKey,
		"inference.projectId": c.Inference.ProjectID,
		"database.dsn":        c.Database.DSN,
	}
	for _, name := range slices.Sorted(maps.Keys(required)) {
		if strings.TrimSpace(required[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: unsupported database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	if c.Database.ReconnectAttempts < 1 {
		return fmt.Errorf("%w: database.reconnectAttempts must be positive", ErrInvalidConfig)
	}
	return nil
}

// Default returns the built-in configuration without credentials.
func Default() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info"},
		Scheduler: SchedulerConfig{Interval: 30 * time.Minute},
		Search: SearchConfig{
			Endpoint: "https://www.googleapis.com/customsearch/v1",
			Keyword:  "경진대회 공모전",
			Timeout:  10 * time.Second,
		},
		OCR: OCRConfig{
			Format:  "jpg",
			Timeout: 30 * time.Second,
		},
		Inference: InferenceConfig{
			URL:          "https://us-south.ml.cloud.ibm.com",
			IAMEndpoint:  "https://iam.cloud.ibm.com/identity/token",
			ModelID:      "mistralai/mistral-large",
			Version:      "2023-05-29",
			MinNewTokens: 1,
			MaxNewTokens: 1000,
			StopSequence: "<|endoftext|>",
			Timeout:      2 * time.Minute,
		},
		Database: DatabaseConfig{
			Driver:            "postgres",
			Table:             "competition",
			ConnectTimeout:    180 * time.Second,
			ReconnectAttempts: 3,
			ReconnectDelay:    5 * time.Second,
		},
		Pipeline: PipelineConfig{ItemDelay: time.Second},
	}
}
