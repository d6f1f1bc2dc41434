package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 10, cfg.Arena.FlushEveryChunks)
	assert.Equal(t, 5, cfg.Arena.RatingMaxRetries)
	assert.LessOrEqual(t, cfg.Arena.LeaderboardTTL, MaxLeaderboardStaleness)
	assert.Contains(t, cfg.DSN(), "dbname=arena")
}

func TestLeaderboardTTLIsClamped(t *testing.T) {
	t.Setenv("LEADERBOARD_TTL", "10m")
	assert.Equal(t, MaxLeaderboardStaleness, Load().Arena.LeaderboardTTL)

	t.Setenv("LEADERBOARD_TTL", "15s")
	assert.Equal(t, 15*time.Second, Load().Arena.LeaderboardTTL)
}

func TestStringSliceTrimsSpaces(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, Load().Security.AllowedOrigins)
}
