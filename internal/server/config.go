package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port           int           `env:"PORT"              envDefault:"8000"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS"   envDefault:"*" envSeparator:","`
	StaticDir      string        `env:"STATIC_DIR"`
	SendQueueSize  int           `env:"SEND_QUEUE_SIZE"   envDefault:"64"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT"     envDefault:"10s"`
	MaxFrameBytes  int64         `env:"MAX_FRAME_BYTES"   envDefault:"32768"`
	MaxChatLength  int           `env:"MAX_CHAT_LENGTH"   envDefault:"500"`
	ChatRateLimit  int           `env:"CHAT_RATE_LIMIT"   envDefault:"10"`
	ChatRateWindow time.Duration `env:"CHAT_RATE_WINDOW"  envDefault:"1s"`

	DatabaseURL   string `env:"DATABASE_URL"`
	JournalBuffer int    `env:"JOURNAL_BUFFER" envDefault:"1024"`

	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// LoadConfig reads the environment (after .env autoload) into a Config.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.SendQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("SEND_QUEUE_SIZE must be positive, got %d", c.SendQueueSize))
	}
	if c.MaxFrameBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FRAME_BYTES must be positive, got %d", c.MaxFrameBytes))
	}
	if c.MaxChatLength <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CHAT_LENGTH must be positive, got %d", c.MaxChatLength))
	}
	if c.ChatRateLimit > 0 && c.ChatRateWindow <= 0 {
		errs = append(errs, errors.New("CHAT_RATE_WINDOW must be positive when CHAT_RATE_LIMIT is set"))
	}
	if c.DatabaseURL != "" && c.JournalBuffer <= 0 {
		errs = append(errs, fmt.Errorf("JOURNAL_BUFFER must be positive, got %d", c.JournalBuffer))
	}
	return errors.Join(errs...)
}
