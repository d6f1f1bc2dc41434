package repository

import (
	"context"

	"llm-arena/backend/rating/models"
)

// Store persists rating records keyed by (model, category, period)
type Store interface {
	// GetRating returns the stored record or a default one (rating 1500,
	// version 0) when the key has never been written.
	GetRating(ctx context.Context, modelID, category string, period models.Period) (models.Record, error)

	// AtomicUpdatePair applies both deltas and counter increments in one
	// transaction. a and b must be the records as read; if either changed
	// since, nothing is written and ErrConcurrencyConflict is returned.
	AtomicUpdatePair(ctx context.Context, a, b models.Record, deltaA, deltaB int, countsA, countsB models.OutcomeCounts) error

	// TopN lists records by rating descending
	TopN(ctx context.Context, category string, period models.Period, limit int) ([]models.Record, error)

	// ReplacePeriod swaps every record of period for records in one step
	ReplacePeriod(ctx context.Context, period models.Period, records []models.Record) error
}

type recordKey struct {
	modelID  string
	category string
	period   models.Period
}

func keyOf(r models.Record) recordKey {
	return recordKey{modelID: r.ModelID, category: r.Category, period: r.Period}
}

func (k recordKey) less(o recordKey) bool {
	if k.modelID != o.modelID {
		return k.modelID < o.modelID
	}
	if k.category != o.category {
		return k.category < o.category
	}
	return k.period < o.period
}
