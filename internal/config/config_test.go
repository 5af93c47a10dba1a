package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
    t.Setenv("JWT_SECRET", "s")
    t.Setenv("ENGINE_URL", "http://engine:9000")

    cfg, err := Parse()
    require.NoError(t, err)
    assert.Equal(t, "8080", cfg.Port)
    assert.Equal(t, 8, cfg.LobbyCapacity)
    assert.Equal(t, 2, cfg.MinPlayers)
    assert.Equal(t, int64(1000), cfg.InitialBalance)
    assert.Equal(t, time.Hour, cfg.LobbyTTL)
    assert.Equal(t, 5*time.Second, cfg.GuardLease)
    assert.Equal(t, "session.events", cfg.EventsQueue)
    assert.False(t, cfg.Ledger.Enabled())
}

func TestParseClamps(t *testing.T) {
    t.Setenv("JWT_SECRET", "s")
    t.Setenv("ENGINE_URL", "http://engine:9000")
    t.Setenv("LOBBY_CAPACITY", "1")
    t.Setenv("MIN_PLAYERS", "0")
    t.Setenv("GUARD_LEASE", "0s")
    t.Setenv("DB_HOST", "mysql")

    cfg, err := Parse()
    require.NoError(t, err)
    assert.Equal(t, 2, cfg.LobbyCapacity)
    assert.Equal(t, 2, cfg.MinPlayers)
    assert.Equal(t, 5*time.Second, cfg.GuardLease)
    assert.True(t, cfg.Ledger.Enabled())
}

func TestParseRequiresSecret(t *testing.T) {
    t.Setenv("JWT_SECRET", "")
    t.Setenv("ENGINE_URL", "http://engine:9000")
    _, err := Parse()
    assert.Error(t, err)
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
    t.Setenv("RATE_LIMIT_CAPACITY", "0")
    t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1s")
    t.Setenv("RATE_LIMIT_TTL", "1s")

    rl := LoadRateLimitConfig()
    assert.Equal(t, 1, rl.Capacity)
    assert.Equal(t, 5*time.Second, rl.TTL)
    assert.Equal(t, "user_route", rl.KeyStrategy)
}
