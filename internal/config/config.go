package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	AdminUserID      int64  `env:"ADMIN_USER,required"`

	// Assistant service
	OpenAIAPIKey      string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL     string `env:"OPENAI_BASE_URL"`
	OpenAIAssistantID string `env:"OPENAI_ASSISTANT_ID,required"`

	// Quota limits
	DailyMessageLimit   int `env:"DAILY_MESSAGE_LIMIT,required"`
	MonthlyMessageLimit int `env:"MONTHLY_MESSAGE_LIMIT,required"`
	MonthlyTokenLimit   int `env:"MONTHLY_TOKEN_LIMIT,required"`

	// Run polling
	RunPollInterval time.Duration `env:"RUN_POLL_INTERVAL" envDefault:"1s"`
	// RunMaxWait caps how long a single run is polled; 0 means no cap.
	RunMaxWait time.Duration `env:"RUN_MAX_WAIT" envDefault:"0"`

	// Storage
	UsageFilePath string `env:"USAGE_FILE_PATH" envDefault:"data/usage.json"`
	LogFilePath   string `env:"LOG_FILE_PATH" envDefault:"logs/log.jsonl"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
