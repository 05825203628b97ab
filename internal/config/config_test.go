package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.LockStaleness)
	assert.Equal(t, 3, cfg.TxRetries)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.DatabaseURL)
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MARKET_LISTEN_ADDR", ":9999")
	t.Setenv("MARKET_LOCK_STALENESS", "750ms")
	t.Setenv("MARKET_TX_RETRIES", "7")
	t.Setenv("MARKET_LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 750*time.Millisecond, cfg.LockStaleness)
	assert.Equal(t, 7, cfg.TxRetries)
	assert.Equal(t, "debug", cfg.LogLevel)
}
