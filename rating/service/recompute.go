package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/rating/models"
	"llm-arena/backend/rating/repository"

	"golang.org/x/sync/errgroup"
)

var errInvalidPeriod = fmt.Errorf("unknown rating period: %w", apperrors.ErrInvalidArgument)

// OutcomeSource lists stored preference outcomes at or after since
type OutcomeSource interface {
	ListOutcomes(ctx context.Context, since time.Time) ([]models.Outcome, error)
}

type Recomputer struct {
	store       repository.Store
	outcomes    OutcomeSource
	log         *logger.Logger
	concurrency int
	barrier     *Barrier
	now         func() time.Time
}

func NewRecomputer(store repository.Store, outcomes OutcomeSource, log *logger.Logger) *Recomputer {
	return &Recomputer{
		store:       store,
		outcomes:    outcomes,
		log:         log.WithComponent("recompute"),
		concurrency: 4,
		barrier:     NewBarrier(),
		now:         time.Now,
	}
}

// WithBarrier shares b with the live rating updates
func (r *Recomputer) WithBarrier(b *Barrier) *Recomputer {
	r.barrier = b
	return r
}

// RecomputeAllRatings rebuilds every record of period by replaying the
// outcomes inside its window in time order, starting from 1500. Outcomes in
// a specific category also count towards overall unless marked CategoryOnly.
// Running it twice over the same history produces the same records. An
// all_time rebuild holds the barrier alone so no live update lands between
// the read and the replace.
func (r *Recomputer) RecomputeAllRatings(ctx context.Context, period models.Period) (int, error) {
	if !period.Valid() {
		return 0, fmt.Errorf("period %q: %w", period, errInvalidPeriod)
	}

	var since time.Time
	if w := period.Window(); w > 0 {
		since = r.now().Add(-w)
	}

	if period == models.PeriodAllTime {
		unlock := r.barrier.Recompute()
		defer unlock()
	}

	outcomes, err := r.outcomes.ListOutcomes(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("list outcomes: %w", err)
	}
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].OccurredAt.Before(outcomes[j].OccurredAt)
	})

	byCategory := make(map[string][]models.Outcome)
	for _, o := range outcomes {
		if !o.Result.Valid() || o.ModelAID == o.ModelBID {
			r.log.Warn("Skipping invalid outcome", "model_a", o.ModelAID, "model_b", o.ModelBID, "result", o.Result)
			continue
		}
		category := o.Category
		if category == "" {
			category = models.CategoryOverall
		}
		byCategory[category] = append(byCategory[category], o)
		if category != models.CategoryOverall && !o.CategoryOnly {
			byCategory[models.CategoryOverall] = append(byCategory[models.CategoryOverall], o)
		}
	}

	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	results := make([][]models.Record, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, category := range categories {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = replay(category, period, byCategory[category])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var all []models.Record
	for _, recs := range results {
		all = append(all, recs...)
	}
	if err := r.store.ReplacePeriod(ctx, period, all); err != nil {
		return 0, fmt.Errorf("replace %s ratings: %w", period, err)
	}

	r.log.Info("Ratings recomputed",
		"period", period,
		"outcomes", len(outcomes),
		"categories", len(byCategory),
		"records", len(all),
	)
	return len(all), nil
}

// replay folds outcomes into fresh records for one category
func replay(category string, period models.Period, outcomes []models.Outcome) []models.Record {
	table := make(map[string]*models.Record)
	get := func(id string) *models.Record {
		rec, ok := table[id]
		if !ok {
			r := models.NewRecord(id, category, period)
			rec = &r
			table[id] = rec
		}
		return rec
	}

	for _, o := range outcomes {
		a, b := get(o.ModelAID), get(o.ModelBID)
		newA, newB := NewRatings(a.Rating, b.Rating, o.Result)
		ca, cb := o.Result.Counts()
		a.Apply(newA-a.Rating, ca)
		b.Apply(newB-b.Rating, cb)
	}

	out := make([]models.Record, 0, len(table))
	for _, rec := range table {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}
