package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
)

type LLM struct {
	Provider         string   `yaml:"provider" env:"LLM_PROVIDER" env-default:"gemini"`
	APIKeys          []string `yaml:"api_keys" env:"LLM_API_KEYS" env-separator:","`
	BaseURL          string   `yaml:"base_url" env:"LLM_BASE_URL"`
	FastModel        string   `yaml:"fast_model" env:"LLM_FAST_MODEL" env-default:"gemini-2.5-flash"`
	QualityModel     string   `yaml:"quality_model" env:"LLM_QUALITY_MODEL" env-default:"gemini-2.5-pro"`
	ImageModel       string   `yaml:"image_model" env:"LLM_IMAGE_MODEL"`
	SpeechModel      string   `yaml:"speech_model" env:"LLM_SPEECH_MODEL"`
	MaxHistoryTokens int      `yaml:"max_history_tokens" env:"LLM_MAX_HISTORY_TOKENS" env-default:"30000"`
}

type Redis struct {
	Endpoint string `yaml:"endpoint" env:"REDIS_ENDPOINT" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Storage struct {
	Backend    string        `yaml:"backend" env:"STORAGE_BACKEND" env-default:"memory"`
	SQLitePath string        `yaml:"sqlite_path" env:"STORAGE_SQLITE_PATH" env-default:"data/persona-chat.db"`
	CacheTTL   time.Duration `yaml:"cache_ttl" env:"STORAGE_CACHE_TTL" env-default:"6h"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	RateLimit       float64       `yaml:"rate_limit" env:"HTTP_RATE_LIMIT" env-default:"5"`
	Burst           int           `yaml:"burst" env:"HTTP_BURST" env-default:"20"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type Telegram struct {
	TelegramAPIToken  string        `env:"TELEGRAM_APITOKEN"`
	// AllowedTelegramID limits the bot to these users; empty means public.
	AllowedTelegramID []int64       `yaml:"allowed_telegram_id" env:"ALLOWED_TELEGRAM_ID" env-separator:","`
	EditInterval      time.Duration `yaml:"edit_interval" env:"TELEGRAM_EDIT_INTERVAL" env-default:"2500ms"`
}

type Apps struct {
	QuranBaseURL     string `yaml:"quran_base_url" env:"APPS_QURAN_BASE_URL"`
	Reciter          string `yaml:"reciter" env:"APPS_RECITER" env-default:"ar.alafasy"`
	AladhanBaseURL   string `yaml:"aladhan_base_url" env:"APPS_ALADHAN_BASE_URL"`
	PrayerMethod     int    `yaml:"prayer_method" env:"APPS_PRAYER_METHOD" env-default:"4"`
	GeocodingBaseURL string `yaml:"geocoding_base_url" env:"APPS_GEOCODING_BASE_URL"`
	ForecastBaseURL  string `yaml:"forecast_base_url" env:"APPS_FORECAST_BASE_URL"`
	SearchBaseURL    string `yaml:"search_base_url" env:"APPS_SEARCH_BASE_URL"`
	SearchAPIKey     string `env:"APPS_SEARCH_API_KEY"`
	SearchEngineID   string `yaml:"search_engine_id" env:"APPS_SEARCH_ENGINE_ID"`
}

type Config struct {
	LLM          LLM      `yaml:"llm"`
	Redis        Redis    `yaml:"redis"`
	Storage      Storage  `yaml:"storage"`
	HTTP         HTTP     `yaml:"http"`
	Telegram     Telegram `yaml:"telegram"`
	Apps         Apps     `yaml:"apps"`
	PersonasFile string   `yaml:"personas_file" env:"PERSONAS_FILE"`
	LogLevel     string   `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

// LoadConfig reads cfgPath when given, then the environment, which wins.
func LoadConfig(cfgPath string) (*Config, error) {
	var cfg Config
	if cfgPath != "" {
		if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgPath, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Storage.Backend {
	case StorageMemory, StorageRedis, StorageSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}
