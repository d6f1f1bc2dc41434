package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	convmodels "llm-arena/backend/conversation/models"
	convrepo "llm-arena/backend/conversation/repository"
	"llm-arena/backend/feedback/models"
	"llm-arena/backend/feedback/repository"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"
	ratingmodels "llm-arena/backend/rating/models"
	ratingrepo "llm-arena/backend/rating/repository"
	ratingservice "llm-arena/backend/rating/service"
	sessionmodels "llm-arena/backend/session/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionMap map[string]*sessionmodels.Session

func (m sessionMap) Get(_ context.Context, id string) (*sessionmodels.Session, error) {
	if s, ok := m[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrSessionNotFound)
}

type knownModels map[string]bool

func (k knownModels) Exists(_ context.Context, id string) (bool, error) {
	return k[id], nil
}

type countingInvalidator struct{ n atomic.Int32 }

func (c *countingInvalidator) Invalidate(context.Context) { c.n.Add(1) }

// flakyOverall fails the first overall updates with an error a retry can fix
type flakyOverall struct {
	next     RatingApplier
	failures int32
	attempts atomic.Int32
}

func (f *flakyOverall) ApplyOutcome(ctx context.Context, modelA, modelB string, result ratingmodels.Result, category string) (int, int, error) {
	if category == ratingmodels.CategoryOverall {
		if n := f.attempts.Add(1); n <= f.failures {
			return 0, 0, errors.New("connection reset by peer")
		}
	}
	return f.next.ApplyOutcome(ctx, modelA, modelB, result, category)
}

type fixture struct {
	svc         *Service
	repo        *repository.MemoryPreferenceRepository
	sessions    sessionMap
	engine      *ratingservice.Engine
	ratings     *ratingrepo.MemoryStore
	messages    *convrepo.MemoryTreeStore
	invalidated *countingInvalidator
}

func ptr(s string) *string { return &s }

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	modelB := "claude"
	sessions := sessionMap{
		"cmp":    {ID: "cmp", Mode: sessionmodels.ModeCompare, ModelAID: "gpt", ModelBID: &modelB},
		"direct": {ID: "direct", Mode: sessionmodels.ModeDirect, ModelAID: "gpt"},
		"ghost":  {ID: "ghost", Mode: sessionmodels.ModeRandom, ModelAID: "gpt", ModelBID: ptr("retired")},
	}
	f := &fixture{
		repo:        repository.NewMemoryPreferenceRepository(),
		sessions:    sessions,
		ratings:     ratingrepo.NewMemoryStore(),
		messages:    convrepo.NewMemoryTreeStore(),
		invalidated: &countingInvalidator{},
	}
	f.engine = ratingservice.NewEngine(f.ratings, knownModels{"gpt": true, "claude": true}, 3, logger.Discard())
	f.svc = NewService(f.repo, sessions, f.messages, f.engine, f.invalidated, cfg, logger.Discard())
	return f
}

func (f *fixture) start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f.svc.Start(ctx)
	t.Cleanup(func() {
		cancel()
		f.svc.Wait()
	})
}

func (f *fixture) rating(t *testing.T, model, category string) ratingmodels.Record {
	t.Helper()
	rec, err := f.ratings.GetRating(context.Background(), model, category, ratingmodels.PeriodAllTime)
	require.NoError(t, err)
	return rec
}

// total polls the all-time comparison count of a model
func (f *fixture) total(model, category string, want int) func() bool {
	return func() bool {
		rec, err := f.ratings.GetRating(context.Background(), model, category, ratingmodels.PeriodAllTime)
		return err == nil && rec.TotalComparisons == want
	}
}

func (f *fixture) applied(id string) func() bool {
	return func() bool {
		p, err := f.repo.Get(context.Background(), id)
		return err == nil && p.Settled()
	}
}

func TestRecordPreferenceUpdatesCategoryAndOverall(t *testing.T) {
	f := newFixture(t, Config{})
	f.start(t)

	pref, err := f.svc.RecordPreference(context.Background(), RecordInput{
		SessionID:        "cmp",
		UserID:           "u1",
		PreferredModelID: ptr("gpt"),
		Category:         ptr(" Code "),
	})
	require.NoError(t, err)
	assert.Equal(t, ratingmodels.ResultAWins, pref.Result)
	assert.Equal(t, "code", pref.Category)
	assert.Equal(t, "claude", pref.ModelBID)

	require.Eventually(t, func() bool {
		return f.invalidated.n.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.applied(pref.ID)())
	assert.Equal(t, 1, f.rating(t, "gpt", ratingmodels.CategoryOverall).TotalComparisons)

	assert.Equal(t, 1516, f.rating(t, "gpt", "code").Rating)
	assert.Equal(t, 1484, f.rating(t, "claude", "code").Rating)
	assert.Equal(t, 1516, f.rating(t, "gpt", ratingmodels.CategoryOverall).Rating)
	assert.Equal(t, 1, f.rating(t, "claude", ratingmodels.CategoryOverall).Losses)
}

func TestNoPreferenceIsATie(t *testing.T) {
	f := newFixture(t, Config{})
	f.start(t)

	pref, err := f.svc.RecordPreference(context.Background(), RecordInput{SessionID: "cmp"})
	require.NoError(t, err)
	assert.Equal(t, ratingmodels.ResultTie, pref.Result)
	assert.Equal(t, ratingmodels.CategoryOverall, pref.Category)

	require.Eventually(t, f.applied(pref.ID), 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return f.invalidated.n.Load() == 1 }, time.Second, 10*time.Millisecond)

	rec := f.rating(t, "gpt", ratingmodels.CategoryOverall)
	assert.Equal(t, 1500, rec.Rating)
	assert.Equal(t, 1, rec.Ties)
}

func TestRecordPreferenceValidation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.svc.RecordPreference(ctx, RecordInput{SessionID: "direct"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOutcome)

	_, err = f.svc.RecordPreference(ctx, RecordInput{SessionID: "cmp", PreferredModelID: ptr("llama")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOutcome)

	_, err = f.svc.RecordPreference(ctx, RecordInput{SessionID: "nope"})
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	_, err = f.svc.RecordPreference(ctx, RecordInput{SessionID: "cmp", MessageID: ptr("missing")})
	assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)

	other := &convmodels.Message{SessionID: "direct", Role: convmodels.RoleUser, Status: convmodels.StatusSuccess}
	_, err = f.messages.AppendMessage(ctx, other)
	require.NoError(t, err)
	_, err = f.svc.RecordPreference(ctx, RecordInput{SessionID: "cmp", MessageID: &other.ID})
	assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)
}

func TestSweepPicksUpPreferencesThatMissedTheQueue(t *testing.T) {
	f := newFixture(t, Config{QueueSize: 1, Workers: 1, SweepInterval: 20 * time.Millisecond})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		pref, err := f.svc.RecordPreference(ctx, RecordInput{SessionID: "cmp", PreferredModelID: ptr("claude")})
		require.NoError(t, err)
		ids = append(ids, pref.ID)
	}

	f.start(t)
	for _, id := range ids {
		require.Eventually(t, f.applied(id), 2*time.Second, 10*time.Millisecond)
	}
	require.Eventually(t, f.total("claude", ratingmodels.CategoryOverall, 5), 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	rec := f.rating(t, "claude", ratingmodels.CategoryOverall)
	assert.Equal(t, 5, rec.Wins, "each preference is applied exactly once")
}

func TestUnknownModelIsNotRetried(t *testing.T) {
	f := newFixture(t, Config{SweepInterval: 10 * time.Millisecond})
	f.start(t)

	pref, err := f.svc.RecordPreference(context.Background(), RecordInput{SessionID: "ghost", PreferredModelID: ptr("gpt")})
	require.NoError(t, err)

	require.Eventually(t, f.applied(pref.ID), 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, f.applied(pref.ID)())
	assert.Zero(t, f.invalidated.n.Load())
}

func TestOutcomesFeedRecompute(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	for _, winner := range []string{"gpt", "gpt", "claude"} {
		_, err := f.svc.RecordPreference(ctx, RecordInput{SessionID: "cmp", PreferredModelID: ptr(winner), Category: ptr("code")})
		require.NoError(t, err)
	}

	outcomes, err := f.repo.ListOutcomes(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, outcomes, "unclaimed preferences belong to the workers")

	f.start(t)
	require.Eventually(t, f.total("gpt", ratingmodels.CategoryOverall, 3), 2*time.Second, 10*time.Millisecond)

	outcomes, err = f.repo.ListOutcomes(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	recomputer := ratingservice.NewRecomputer(f.ratings, f.repo, logger.Discard())
	written, err := recomputer.RecomputeAllRatings(ctx, ratingmodels.PeriodWeekly)
	require.NoError(t, err)
	assert.Equal(t, 4, written, "two models in code and overall")

	rec, err := f.ratings.GetRating(ctx, "gpt", "code", ratingmodels.PeriodWeekly)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Wins)
	assert.Equal(t, 1, rec.Losses)
}

func TestRecomputeBeforeWorkersCountsEachPreferenceOnce(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	pref, err := f.svc.RecordPreference(ctx, RecordInput{SessionID: "cmp", PreferredModelID: ptr("gpt"), Category: ptr("code")})
	require.NoError(t, err)

	recomputer := ratingservice.NewRecomputer(f.ratings, f.repo, logger.Discard())
	_, err = recomputer.RecomputeAllRatings(ctx, ratingmodels.PeriodAllTime)
	require.NoError(t, err)

	f.start(t)
	require.Eventually(t, f.applied(pref.ID), 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, f.total("gpt", ratingmodels.CategoryOverall, 1), 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, f.total("gpt", "code", 1), 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	for _, category := range []string{"code", ratingmodels.CategoryOverall} {
		rec := f.rating(t, "gpt", category)
		assert.Equal(t, 1516, rec.Rating, category)
		assert.Equal(t, 1, rec.TotalComparisons, category)
	}

	// a rebuild once the workers are done reproduces the live records
	_, err = recomputer.RecomputeAllRatings(ctx, ratingmodels.PeriodAllTime)
	require.NoError(t, err)
	for _, category := range []string{"code", ratingmodels.CategoryOverall} {
		rec := f.rating(t, "gpt", category)
		assert.Equal(t, 1516, rec.Rating, category)
		assert.Equal(t, 1, rec.TotalComparisons, category)
	}
}

func TestFailedOverallUpdateIsRetried(t *testing.T) {
	f := newFixture(t, Config{})
	flaky := &flakyOverall{next: f.engine, failures: 1}
	f.svc = NewService(f.repo, f.sessions, f.messages, flaky, f.invalidated, Config{SweepInterval: 20 * time.Millisecond}, logger.Discard())
	f.start(t)

	pref, err := f.svc.RecordPreference(context.Background(), RecordInput{SessionID: "cmp", PreferredModelID: ptr("gpt"), Category: ptr("code")})
	require.NoError(t, err)

	require.Eventually(t, f.total("gpt", ratingmodels.CategoryOverall, 1), 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.applied(pref.ID)())
	assert.Equal(t, int32(2), flaky.attempts.Load(), "one failure, one retry")
	require.Eventually(t, func() bool { return f.invalidated.n.Load() >= 2 }, time.Second, 10*time.Millisecond)

	code := f.rating(t, "gpt", "code")
	assert.Equal(t, 1516, code.Rating)
	assert.Equal(t, 1, code.TotalComparisons, "the category is not applied again")

	overall := f.rating(t, "gpt", ratingmodels.CategoryOverall)
	assert.Equal(t, 1516, overall.Rating)
	assert.Equal(t, 1, overall.Wins)
}

func TestRecomputeLeavesPendingOverallToTheWorkers(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	pref, err := f.svc.RecordPreference(ctx, RecordInput{SessionID: "cmp", PreferredModelID: ptr("gpt"), Category: ptr("code")})
	require.NoError(t, err)
	claimed, err := f.repo.Claim(ctx, pref.ID, models.StageCategory)
	require.NoError(t, err)
	require.True(t, claimed)

	outcomes, err := f.repo.ListOutcomes(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].CategoryOnly)

	_, err = ratingservice.NewRecomputer(f.ratings, f.repo, logger.Discard()).RecomputeAllRatings(ctx, ratingmodels.PeriodAllTime)
	require.NoError(t, err)
	assert.Equal(t, 1, f.rating(t, "gpt", "code").TotalComparisons)
	assert.Zero(t, f.rating(t, "gpt", ratingmodels.CategoryOverall).TotalComparisons)

	f.start(t)
	require.Eventually(t, f.total("gpt", ratingmodels.CategoryOverall, 1), 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.rating(t, "gpt", "code").TotalComparisons)
	assert.Equal(t, 1, f.rating(t, "gpt", ratingmodels.CategoryOverall).TotalComparisons)
}
