//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"llm-arena/backend/feedback/models"
	"llm-arena/backend/pkg/dbtest"
	ratingmodels "llm-arena/backend/rating/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormClaimStages(t *testing.T) {
	repo := NewGormPreferenceRepository(dbtest.Open(t, &models.Preference{}))
	ctx := context.Background()
	started := time.Now()

	code := &models.Preference{ID: uuid.NewString(), SessionID: uuid.NewString(), ModelAID: "a", ModelBID: "b", Category: "code", Result: ratingmodels.ResultAWins}
	overall := &models.Preference{ID: uuid.NewString(), SessionID: code.SessionID, ModelAID: "a", ModelBID: "b", Category: ratingmodels.CategoryOverall, Result: ratingmodels.ResultTie}
	require.NoError(t, repo.Create(ctx, code))
	require.NoError(t, repo.Create(ctx, overall))

	claimed, err := repo.Claim(ctx, code.ID, models.StageOverall)
	require.NoError(t, err)
	assert.False(t, claimed, "overall waits for the category")

	for _, id := range []string{code.ID, overall.ID} {
		claimed, err = repo.Claim(ctx, id, models.StageCategory)
		require.NoError(t, err)
		require.True(t, claimed)
	}

	claimed, err = repo.Claim(ctx, overall.ID, models.StageOverall)
	require.NoError(t, err)
	assert.False(t, claimed, "an overall preference has a single stage")

	outcomes, err := repo.ListOutcomes(ctx, started.Add(-time.Second))
	require.NoError(t, err)
	byCategory := map[string]ratingmodels.Outcome{}
	for _, o := range outcomes {
		byCategory[o.Category] = o
	}
	assert.True(t, byCategory["code"].CategoryOnly)
	assert.False(t, byCategory[ratingmodels.CategoryOverall].CategoryOnly)

	claimed, err = repo.Claim(ctx, code.ID, models.StageOverall)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, repo.Release(ctx, code.ID, models.StageOverall))

	pref, err := repo.Get(ctx, code.ID)
	require.NoError(t, err)
	assert.True(t, pref.RatingApplied)
	assert.False(t, pref.OverallApplied)
}
