package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"llm-arena/backend/feedback/models"
	apperrors "llm-arena/backend/pkg/errors"
	ratingmodels "llm-arena/backend/rating/models"

	"gorm.io/gorm"
)

// PreferenceRepository persists preferences and hands them to rating workers
type PreferenceRepository interface {
	Create(ctx context.Context, pref *models.Preference) error
	Get(ctx context.Context, id string) (*models.Preference, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Preference, error)
	// ListPending returns preferences with a stage no worker has claimed
	// yet, oldest first
	ListPending(ctx context.Context, limit int) ([]models.Preference, error)
	// Claim marks one stage of a preference as applied. Only one caller gets
	// true. The overall stage can only be claimed after the category stage.
	Claim(ctx context.Context, id string, stage models.Stage) (bool, error)
	// Release undoes a claim after a failed rating update
	Release(ctx context.Context, id string, stage models.Stage) error
	// ListOutcomes returns the claimed preferences at or after since as
	// outcomes, oldest first. A zero since means all of them. Unclaimed
	// preferences are left to the workers.
	ListOutcomes(ctx context.Context, since time.Time) ([]ratingmodels.Outcome, error)
}

type GormPreferenceRepository struct {
	db *gorm.DB
}

func NewGormPreferenceRepository(db *gorm.DB) *GormPreferenceRepository {
	return &GormPreferenceRepository{db: db}
}

func (r *GormPreferenceRepository) Create(ctx context.Context, pref *models.Preference) error {
	return r.db.WithContext(ctx).Create(pref).Error
}

func (r *GormPreferenceRepository) Get(ctx context.Context, id string) (*models.Preference, error) {
	var pref models.Preference
	err := r.db.WithContext(ctx).First(&pref, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("preference %s: %w", id, apperrors.ErrPreferenceNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *GormPreferenceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Preference, error) {
	var list []models.Preference
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at").Find(&list).Error
	return list, err
}

func (r *GormPreferenceRepository) ListPending(ctx context.Context, limit int) ([]models.Preference, error) {
	var list []models.Preference
	err := r.db.WithContext(ctx).
		Where("rating_applied = ? OR (overall_applied = ? AND category <> ?)", false, false, ratingmodels.CategoryOverall).
		Order("created_at").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func stageColumn(stage models.Stage) string {
	if stage == models.StageOverall {
		return "overall_applied"
	}
	return "rating_applied"
}

func (r *GormPreferenceRepository) Claim(ctx context.Context, id string, stage models.Stage) (bool, error) {
	column := stageColumn(stage)
	query := r.db.WithContext(ctx).Model(&models.Preference{}).
		Where("id = ?", id).
		Where(column+" = ?", false)
	if stage == models.StageOverall {
		query = query.Where("rating_applied = ? AND category <> ?", true, ratingmodels.CategoryOverall)
	}
	res := query.Update(column, true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormPreferenceRepository) Release(ctx context.Context, id string, stage models.Stage) error {
	return r.db.WithContext(ctx).Model(&models.Preference{}).
		Where("id = ?", id).
		Update(stageColumn(stage), false).Error
}

func (r *GormPreferenceRepository) ListOutcomes(ctx context.Context, since time.Time) ([]ratingmodels.Outcome, error) {
	query := r.db.WithContext(ctx).Where("rating_applied = ?", true).Order("created_at")
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}
	var list []models.Preference
	if err := query.Find(&list).Error; err != nil {
		return nil, err
	}
	out := make([]ratingmodels.Outcome, 0, len(list))
	for _, p := range list {
		out = append(out, p.Outcome())
	}
	return out, nil
}
