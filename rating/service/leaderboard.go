package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	catalogmodels "llm-arena/backend/catalog/models"
	"llm-arena/backend/pkg/cache"
	"llm-arena/backend/pkg/config"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/rating/models"
	"llm-arena/backend/rating/repository"
	sharedredis "llm-arena/backend/shared/redis"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// ModelLookup resolves display details for leaderboard rows
type ModelLookup interface {
	Get(ctx context.Context, id string) (*catalogmodels.Model, error)
}

// Leaderboard serves ranked ratings through a local cache and an optional
// shared redis cache. Entries may be up to ttl old; writers are never
// blocked by readers.
type Leaderboard struct {
	store  repository.Store
	lookup ModelLookup
	local  *cache.Cache
	redis  *sharedredis.RedisClient
	ttl    time.Duration
	log    *logger.Logger
}

func NewLeaderboard(store repository.Store, lookup ModelLookup, local *cache.Cache, redis *sharedredis.RedisClient, ttl time.Duration, log *logger.Logger) *Leaderboard {
	if ttl <= 0 || ttl > config.MaxLeaderboardStaleness {
		ttl = config.MaxLeaderboardStaleness
	}
	return &Leaderboard{
		store:  store,
		lookup: lookup,
		local:  local,
		redis:  redis,
		ttl:    ttl,
		log:    log.WithComponent("leaderboard"),
	}
}

func leaderboardKey(category string, period models.Period, limit int) string {
	return fmt.Sprintf("leaderboard:%s:%s:%d", category, period, limit)
}

// TopN returns at most limit entries ranked by rating
func (l *Leaderboard) TopN(ctx context.Context, category string, period models.Period, limit int) ([]models.LeaderboardEntry, error) {
	if category == "" {
		category = models.CategoryOverall
	}
	if period == "" {
		period = models.PeriodAllTime
	}
	if !period.Valid() {
		return nil, fmt.Errorf("period %q: %w", period, errInvalidPeriod)
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	key := leaderboardKey(category, period, limit)

	if l.local != nil {
		if v, ok := l.local.Get(key); ok {
			return v.([]models.LeaderboardEntry), nil
		}
	}

	if l.redis != nil {
		var entries []models.LeaderboardEntry
		err := l.redis.GetJSON(ctx, key, &entries)
		if err == nil {
			l.storeLocal(key, entries)
			return entries, nil
		}
		if !errors.Is(err, sharedredis.ErrCacheMiss) {
			l.log.Warn("Leaderboard cache read failed", "key", key, "error", err.Error())
		}
	}

	records, err := l.store.TopN(ctx, category, period, limit)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	entries := l.buildEntries(ctx, records)

	l.storeLocal(key, entries)
	if l.redis != nil {
		if err := l.redis.SetJSON(ctx, key, entries, l.ttl); err != nil {
			l.log.Warn("Leaderboard cache write failed", "key", key, "error", err.Error())
		}
	}
	return entries, nil
}

func (l *Leaderboard) storeLocal(key string, entries []models.LeaderboardEntry) {
	if l.local != nil {
		l.local.SetWithExpiration(key, entries, l.ttl)
	}
}

func (l *Leaderboard) buildEntries(ctx context.Context, records []models.Record) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(records))
	for i, rec := range records {
		entry := models.LeaderboardEntry{
			Rank:             i + 1,
			ModelID:          rec.ModelID,
			Rating:           rec.Rating,
			WinRate:          rec.WinRate(),
			TotalComparisons: rec.TotalComparisons,
			Wins:             rec.Wins,
			Losses:           rec.Losses,
			Ties:             rec.Ties,
		}
		if l.lookup != nil {
			if m, err := l.lookup.Get(ctx, rec.ModelID); err == nil {
				entry.DisplayName = m.DisplayName
				entry.Provider = string(m.Provider)
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// Invalidate drops cached boards so the next read hits the store
func (l *Leaderboard) Invalidate(ctx context.Context) {
	if l.local != nil {
		l.local.DeletePrefix("leaderboard:")
	}
	if l.redis != nil {
		if err := l.redis.DelPattern(ctx, "leaderboard:*"); err != nil {
			l.log.Warn("Leaderboard cache invalidation failed", "error", err.Error())
		}
	}
}
