package service

import (
	"context"
	"errors"
	"fmt"

	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/rating/models"
	"llm-arena/backend/rating/repository"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ModelChecker answers whether a model id is registered
type ModelChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type Engine struct {
	store      repository.Store
	models     ModelChecker
	locks      *pairLocker
	maxRetries int
	log        *logger.Logger
	metrics    engineMetrics
}

func NewEngine(store repository.Store, checker ModelChecker, maxRetries int, log *logger.Logger) *Engine {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Engine{
		store:      store,
		models:     checker,
		locks:      newPairLocker(),
		maxRetries: maxRetries,
		log:        log.WithComponent("rating"),
		metrics:    newEngineMetrics(),
	}
}

// ApplyOutcome updates the all-time ratings of both models in category and
// returns their new values. Both records change together or not at all.
// Conflicting writers are retried with fresh reads up to maxRetries times.
func (e *Engine) ApplyOutcome(ctx context.Context, modelA, modelB string, result models.Result, category string) (int, int, error) {
	if category == "" {
		category = models.CategoryOverall
	}

	ctx, span := tracer.Start(ctx, "rating.ApplyOutcome", trace.WithAttributes(
		attribute.String("model_a", modelA),
		attribute.String("model_b", modelB),
		attribute.String("result", string(result)),
		attribute.String("category", category),
	))
	defer span.End()

	newA, newB, err := e.applyOutcome(ctx, modelA, modelB, result, category)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, 0, err
	}
	e.metrics.updates.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(result))))
	return newA, newB, nil
}

func (e *Engine) applyOutcome(ctx context.Context, modelA, modelB string, result models.Result, category string) (int, int, error) {
	if !result.Valid() {
		return 0, 0, fmt.Errorf("result %q: %w", result, apperrors.ErrInvalidOutcome)
	}
	if modelA == "" || modelA == modelB {
		return 0, 0, fmt.Errorf("a model cannot be compared with itself: %w", apperrors.ErrInvalidOutcome)
	}
	for _, id := range []string{modelA, modelB} {
		ok, err := e.models.Exists(ctx, id)
		if err != nil {
			return 0, 0, err
		}
		if !ok {
			return 0, 0, fmt.Errorf("model %s: %w", id, apperrors.ErrModelNotFound)
		}
	}

	unlock := e.locks.Lock(modelA, modelB)
	defer unlock()

	countsA, countsB := result.Counts()
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		recA, err := e.store.GetRating(ctx, modelA, category, models.PeriodAllTime)
		if err != nil {
			return 0, 0, fmt.Errorf("read rating: %w", err)
		}
		recB, err := e.store.GetRating(ctx, modelB, category, models.PeriodAllTime)
		if err != nil {
			return 0, 0, fmt.Errorf("read rating: %w", err)
		}

		newA, newB := NewRatings(recA.Rating, recB.Rating, result)
		err = e.store.AtomicUpdatePair(ctx, recA, recB, newA-recA.Rating, newB-recB.Rating, countsA, countsB)
		if err == nil {
			e.log.Debug("Ratings updated",
				"model_a", modelA, "model_b", modelB,
				"category", category, "result", result,
				"rating_a", newA, "rating_b", newB,
			)
			return newA, newB, nil
		}
		if !errors.Is(err, apperrors.ErrConcurrencyConflict) {
			return 0, 0, fmt.Errorf("update ratings: %w", err)
		}

		e.metrics.conflicts.Add(ctx, 1)
		e.log.Warn("Rating update conflict, retrying",
			"model_a", modelA, "model_b", modelB, "attempt", attempt)
	}

	return 0, 0, fmt.Errorf("rating update for %s vs %s gave up after %d attempts: %w",
		modelA, modelB, e.maxRetries, apperrors.ErrConcurrencyConflict)
}

// GetRating reads one record, defaulting to 1500
func (e *Engine) GetRating(ctx context.Context, modelID, category string, period models.Period) (models.Record, error) {
	if category == "" {
		category = models.CategoryOverall
	}
	return e.store.GetRating(ctx, modelID, category, period)
}
