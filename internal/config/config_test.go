package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.RedisAuctionsHost)
	assert.Equal(t, uint16(6379), cfg.RedisAuctionsPort)
	assert.True(t, decimal.RequireFromString("0.01").Equal(cfg.BidMinIncrement))
	assert.Equal(t, "earliest", cfg.ProxyTieBreak)
	assert.Equal(t, 2*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, 10*time.Second, cfg.SyncInterval)
	assert.Equal(t, 1024, cfg.UserNameCacheSize)
	assert.Equal(t, 3, cfg.PublishRetries)
	assert.Equal(t, uint16(8085), cfg.HttpServerPort)
	assert.Equal(t, "redis", cfg.EventsBackend)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("BID_MIN_INCREMENT", "0.50")
	t.Setenv("PROXY_TIE_BREAK", "latest")
	t.Setenv("SCHEDULER_INTERVAL", "500ms")
	t.Setenv("REDIS_AUCTIONS_DB", "3")
	t.Setenv("EVENTS_BACKEND", "local")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.5").Equal(cfg.BidMinIncrement))
	assert.Equal(t, "latest", cfg.ProxyTieBreak)
	assert.Equal(t, 500*time.Millisecond, cfg.SchedulerInterval)
	assert.Equal(t, 3, cfg.RedisAuctionsDb)
	assert.Equal(t, "local", cfg.EventsBackend)
}

func TestParseRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"zero increment":      {"BID_MIN_INCREMENT", "0"},
		"negative increment":  {"BID_MIN_INCREMENT", "-0.01"},
		"sub-cent increment":  {"BID_MIN_INCREMENT", "0.001"},
		"unknown tie break":   {"PROXY_TIE_BREAK", "random"},
		"port out of range":   {"HTTP_SERVER_PORT", "80"},
		"not a duration":      {"SYNC_INTERVAL", "often"},
		"tiny scheduler tick": {"SCHEDULER_INTERVAL", "1ms"},
		"unknown backend":     {"EVENTS_BACKEND", "kafka"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}
