package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/rating/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetRating(ctx context.Context, modelID, category string, period models.Period) (models.Record, error) {
	var rec models.Record
	err := s.db.WithContext(ctx).
		Where("model_id = ? AND category = ? AND period = ?", modelID, category, period).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewRecord(modelID, category, period), nil
	}
	if err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

func (s *GormStore) AtomicUpdatePair(ctx context.Context, a, b models.Record, deltaA, deltaB int, countsA, countsB models.OutcomeCounts) error {
	if keyOf(a) == keyOf(b) {
		return fmt.Errorf("pair update on a single record: %w", apperrors.ErrInvalidOutcome)
	}
	first, second := a, b
	firstDelta, secondDelta := deltaA, deltaB
	firstCounts, secondCounts := countsA, countsB
	if keyOf(b).less(keyOf(a)) {
		first, second = b, a
		firstDelta, secondDelta = deltaB, deltaA
		firstCounts, secondCounts = countsB, countsA
	}

	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Rows are touched in key order so concurrent pairs sharing a model
		// cannot deadlock on each other.
		if err := applyDelta(tx, first, firstDelta, firstCounts, now); err != nil {
			return err
		}
		return applyDelta(tx, second, secondDelta, secondCounts, now)
	})
}

func applyDelta(tx *gorm.DB, read models.Record, delta int, counts models.OutcomeCounts, now time.Time) error {
	if read.Version == 0 {
		seed := models.NewRecord(read.ModelID, read.Category, read.Period)
		seed.UpdatedAt = now
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}
	}

	res := tx.Model(&models.Record{}).
		Where("model_id = ? AND category = ? AND period = ? AND version = ?",
			read.ModelID, read.Category, read.Period, read.Version).
		Updates(map[string]any{
			"rating":            gorm.Expr("rating + ?", delta),
			"wins":              gorm.Expr("wins + ?", counts.Wins),
			"losses":            gorm.Expr("losses + ?", counts.Losses),
			"ties":              gorm.Expr("ties + ?", counts.Ties),
			"total_comparisons": gorm.Expr("total_comparisons + ?", counts.Total()),
			"version":           gorm.Expr("version + 1"),
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("rating %s/%s/%s changed since read: %w",
			read.ModelID, read.Category, read.Period, apperrors.ErrConcurrencyConflict)
	}
	return nil
}

func (s *GormStore) TopN(ctx context.Context, category string, period models.Period, limit int) ([]models.Record, error) {
	var list []models.Record
	err := s.db.WithContext(ctx).
		Where("category = ? AND period = ? AND total_comparisons > 0", category, period).
		Order("rating DESC, total_comparisons DESC, model_id").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (s *GormStore) ReplacePeriod(ctx context.Context, period models.Period, records []models.Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("period = ?", period).Delete(&models.Record{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		now := time.Now()
		for i := range records {
			records[i].Period = period
			records[i].Version = 1
			records[i].UpdatedAt = now
		}
		return tx.CreateInBatches(records, 100).Error
	})
}
