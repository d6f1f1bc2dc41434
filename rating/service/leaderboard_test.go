package service

import (
	"context"
	"testing"
	"time"

	catalogmodels "llm-arena/backend/catalog/models"
	"llm-arena/backend/pkg/cache"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/rating/models"
	"llm-arena/backend/rating/repository"
	sharedredis "llm-arena/backend/shared/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedModels map[string]string

func (n namedModels) Get(_ context.Context, id string) (*catalogmodels.Model, error) {
	name, ok := n[id]
	if !ok {
		return nil, apperrors.ErrModelNotFound
	}
	return &catalogmodels.Model{ID: id, DisplayName: name, Provider: catalogmodels.ProviderOpenAI}, nil
}

func TestLeaderboardServesFromCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	engine := NewEngine(store, modelSet("a", "b", "c"), 3, logger.Discard())
	local := cache.New(cache.Options{DefaultExpiration: time.Minute})
	board := NewLeaderboard(store, namedModels{"a": "Model A"}, local, nil, 30*time.Second, logger.Discard())

	_, _, err := engine.ApplyOutcome(ctx, "a", "b", models.ResultAWins, "")
	require.NoError(t, err)

	entries, err := board.TopN(ctx, "", "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "a", entries[0].ModelID)
	assert.Equal(t, "Model A", entries[0].DisplayName)
	assert.Equal(t, 100.0, entries[0].WinRate)
	assert.Equal(t, 1484, entries[1].Rating)

	_, _, err = engine.ApplyOutcome(ctx, "c", "a", models.ResultAWins, "")
	require.NoError(t, err)

	cached, err := board.TopN(ctx, models.CategoryOverall, models.PeriodAllTime, DefaultLeaderboardLimit)
	require.NoError(t, err)
	assert.Len(t, cached, 2, "stale read within ttl is allowed")

	board.Invalidate(ctx)
	fresh, err := board.TopN(ctx, models.CategoryOverall, models.PeriodAllTime, DefaultLeaderboardLimit)
	require.NoError(t, err)
	assert.Len(t, fresh, 3)
}

func TestLeaderboardSharedThroughRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := sharedredis.NewRedisClient(sharedredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := repository.NewMemoryStore()
	engine := NewEngine(store, modelSet("a", "b"), 3, logger.Discard())
	_, _, err := engine.ApplyOutcome(ctx, "a", "b", models.ResultBWins, "code")
	require.NoError(t, err)

	writer := NewLeaderboard(store, nil, nil, rdb, 20*time.Second, logger.Discard())
	entries, err := writer.TopN(ctx, "code", models.PeriodAllTime, 5)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ModelID)

	assert.True(t, mr.Exists(leaderboardKey("code", models.PeriodAllTime, 5)))
	assert.Equal(t, 20*time.Second, mr.TTL(leaderboardKey("code", models.PeriodAllTime, 5)))

	// A replica with an empty store still answers from the shared cache
	replica := NewLeaderboard(repository.NewMemoryStore(), nil, nil, rdb, 20*time.Second, logger.Discard())
	fromRedis, err := replica.TopN(ctx, "code", models.PeriodAllTime, 5)
	require.NoError(t, err)
	assert.Equal(t, entries, fromRedis)

	mr.FastForward(21 * time.Second)
	expired, err := replica.TopN(ctx, "code", models.PeriodAllTime, 5)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestLeaderboardClampsLimitAndTTL(t *testing.T) {
	board := NewLeaderboard(repository.NewMemoryStore(), nil, nil, nil, time.Hour, logger.Discard())
	assert.Equal(t, time.Minute, board.ttl)

	_, err := board.TopN(context.Background(), "overall", models.Period("yearly"), 500)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	entries, err := board.TopN(context.Background(), "overall", models.PeriodDaily, 500)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
