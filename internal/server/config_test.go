package server

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ALLOWED_ORIGINS", "STATIC_DIR", "SEND_QUEUE_SIZE", "WRITE_TIMEOUT",
		"MAX_FRAME_BYTES", "MAX_CHAT_LENGTH", "CHAT_RATE_LIMIT", "CHAT_RATE_WINDOW",
		"DATABASE_URL", "JOURNAL_BUFFER", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		// Setenv restores the original value on cleanup.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 64, cfg.SendQueueSize)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, int64(32768), cfg.MaxFrameBytes)
	assert.Equal(t, 500, cfg.MaxChatLength)
	assert.Equal(t, 10, cfg.ChatRateLimit)
	assert.Equal(t, time.Second, cfg.ChatRateWindow)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 1024, cfg.JournalBuffer)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("ALLOWED_ORIGINS", "example.com,*.example.org")
	t.Setenv("SEND_QUEUE_SIZE", "8")
	t.Setenv("WRITE_TIMEOUT", "250ms")
	t.Setenv("CHAT_RATE_LIMIT", "0")
	t.Setenv("DATABASE_URL", "postgres://plaza@localhost/plaza")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, []string{"example.com", "*.example.org"}, cfg.AllowedOrigins)
	assert.Equal(t, 8, cfg.SendQueueSize)
	assert.Equal(t, 250*time.Millisecond, cfg.WriteTimeout)
	assert.Equal(t, 0, cfg.ChatRateLimit)
	assert.Equal(t, "postgres://plaza@localhost/plaza", cfg.DatabaseURL)
}

func TestLoadConfig_BadValue(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := testConfig()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Port = 70000 }, "PORT out of range"},
		{"queue", func(c *Config) { c.SendQueueSize = 0 }, "SEND_QUEUE_SIZE"},
		{"frame", func(c *Config) { c.MaxFrameBytes = -1 }, "MAX_FRAME_BYTES"},
		{"chat length", func(c *Config) { c.MaxChatLength = 0 }, "MAX_CHAT_LENGTH"},
		{"rate window", func(c *Config) { c.ChatRateLimit = 5; c.ChatRateWindow = 0 }, "CHAT_RATE_WINDOW"},
		{"journal buffer", func(c *Config) { c.DatabaseURL = "postgres://x"; c.JournalBuffer = 0 }, "JOURNAL_BUFFER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := testConfig()
	cfg.SendQueueSize = 0
	cfg.MaxChatLength = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEND_QUEUE_SIZE")
	assert.Contains(t, err.Error(), "MAX_CHAT_LENGTH")
}
