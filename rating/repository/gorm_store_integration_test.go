//go:build integration

package repository

import (
	"context"
	"testing"

	"llm-arena/backend/pkg/dbtest"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/rating/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGormStore(t *testing.T) *GormStore {
	t.Helper()
	return NewGormStore(dbtest.Open(t, &models.Record{}))
}

func TestGormAtomicUpdatePairSeedsUnseenRecords(t *testing.T) {
	store := newGormStore(t)
	ctx := context.Background()
	modelA, modelB := uuid.NewString(), uuid.NewString()

	a, err := store.GetRating(ctx, modelA, "code", models.PeriodAllTime)
	require.NoError(t, err)
	b, err := store.GetRating(ctx, modelB, "code", models.PeriodAllTime)
	require.NoError(t, err)
	require.Zero(t, a.Version)

	ca, cb := models.ResultAWins.Counts()
	require.NoError(t, store.AtomicUpdatePair(ctx, a, b, 16, -16, ca, cb))

	a, err = store.GetRating(ctx, modelA, "code", models.PeriodAllTime)
	require.NoError(t, err)
	b, err = store.GetRating(ctx, modelB, "code", models.PeriodAllTime)
	require.NoError(t, err)
	assert.Equal(t, 1516, a.Rating)
	assert.Equal(t, 1484, b.Rating)
	assert.Equal(t, int64(1), a.Version)
	assert.Equal(t, 1, a.Wins)
	assert.Equal(t, 1, b.TotalComparisons)
}

func TestGormAtomicUpdatePairRejectsStaleReads(t *testing.T) {
	store := newGormStore(t)
	ctx := context.Background()
	modelA, modelB := uuid.NewString(), uuid.NewString()

	staleA, _ := store.GetRating(ctx, modelA, "code", models.PeriodAllTime)
	staleB, _ := store.GetRating(ctx, modelB, "code", models.PeriodAllTime)
	ca, cb := models.ResultAWins.Counts()
	require.NoError(t, store.AtomicUpdatePair(ctx, staleA, staleB, 16, -16, ca, cb))

	err := store.AtomicUpdatePair(ctx, staleA, staleB, 15, -15, ca, cb)
	assert.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)

	a, err := store.GetRating(ctx, modelA, "code", models.PeriodAllTime)
	require.NoError(t, err)
	assert.Equal(t, 1516, a.Rating, "the rejected update leaves no trace")
	assert.Equal(t, int64(1), a.Version)
}

func TestGormReplacePeriod(t *testing.T) {
	store := newGormStore(t)
	ctx := context.Background()
	category := "replace-" + uuid.NewString()

	first := []models.Record{models.NewRecord("old", category, models.PeriodDaily)}
	first[0].TotalComparisons = 1
	require.NoError(t, store.ReplacePeriod(ctx, models.PeriodDaily, first))

	high := models.NewRecord("high", category, models.PeriodDaily)
	high.Rating, high.TotalComparisons = 1530, 2
	low := models.NewRecord("low", category, models.PeriodDaily)
	low.Rating, low.TotalComparisons = 1470, 2
	require.NoError(t, store.ReplacePeriod(ctx, models.PeriodDaily, []models.Record{low, high}))

	top, err := store.TopN(ctx, category, models.PeriodDaily, 10)
	require.NoError(t, err)
	require.Len(t, top, 2, "earlier records of the period are gone")
	assert.Equal(t, "high", top[0].ModelID)
	assert.Equal(t, "low", top[1].ModelID)
	assert.Equal(t, int64(1), top[0].Version)
}
