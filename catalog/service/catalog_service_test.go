package service

import (
	"context"
	"fmt"
	"testing"

	"llm-arena/backend/catalog/models"
	"llm-arena/backend/catalog/repository"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const seedYAML = `
models:
  - provider: openai
    code: gpt-4o
    display_name: GPT-4o
    capabilities: [Text, code]
  - provider: anthropic
    code: claude-3-5-sonnet
    capabilities: [text, code, creative]
  - provider: google
    code: gemini-1.5-pro
    capabilities: [text]
    active: false
`

func newService(t *testing.T) *CatalogService {
	t.Helper()
	svc := NewCatalogService(repository.NewMemoryModelRepository(), logger.Discard(), 2)
	created, err := svc.Seed(context.Background(), []byte(seedYAML))
	require.NoError(t, err)
	require.Equal(t, 3, created)
	return svc
}

func TestSeedIsIdempotent(t *testing.T) {
	svc := newService(t)

	created, err := svc.Seed(context.Background(), []byte(seedYAML))
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestListByCapabilityReturnsActiveMembersOnly(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	code, err := svc.ListByCapability(ctx, "code")
	require.NoError(t, err)
	assert.Len(t, code, 2)

	text, err := svc.ListByCapability(ctx, "TEXT")
	require.NoError(t, err)
	assert.Len(t, text, 2, "inactive gemini must be excluded")

	creative, err := svc.ListByCapability(ctx, "creative")
	require.NoError(t, err)
	require.Len(t, creative, 1)
	assert.Equal(t, "claude-3-5-sonnet", creative[0].Code)
}

func TestRecordValidationDeactivates(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	active, err := svc.List(ctx, true)
	require.NoError(t, err)
	id := active[0].ID

	m, err := svc.RecordValidation(ctx, id, false, "401 unauthorized")
	require.NoError(t, err)
	assert.True(t, m.Active)

	m, err = svc.RecordValidation(ctx, id, false, "401 unauthorized")
	require.NoError(t, err)
	assert.False(t, m.Active)
	assert.Equal(t, "401 unauthorized", m.LastValidationError)

	exists, err := svc.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists, "deactivated models stay referenced by history")

	_, err = svc.GetActive(ctx, id)
	assert.ErrorIs(t, err, apperrors.ErrModelNotFound)
}

func TestSelectRandomPair(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		a, b, err := svc.SelectRandomPair(ctx, "", nil)
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
		assert.True(t, a.Active && b.Active)
	}

	_, _, err := svc.SelectRandomPair(ctx, "creative", nil)
	assert.ErrorIs(t, err, apperrors.ErrNotEnoughModels)
}

// Random-mode sessions are created from concurrent requests; run with -race.
func TestSelectRandomPairConcurrently(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				a, b, err := svc.SelectRandomPair(ctx, "", nil)
				if err != nil {
					return err
				}
				if a.ID == b.ID {
					return fmt.Errorf("pair repeats model %s", a.ID)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestRegisterValidatesProvider(t *testing.T) {
	svc := NewCatalogService(repository.NewMemoryModelRepository(), logger.Discard(), 0)

	_, err := svc.Register(context.Background(), RegisterInput{Provider: models.Provider("acme"), Code: "x"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	m, err := svc.Register(context.Background(), RegisterInput{Provider: models.ProviderMistral, Code: "mistral-large", Capabilities: []string{"Code", "code", " text "}})
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "text"}, []string(m.Capabilities))
	assert.True(t, m.SupportsStreaming)
}
