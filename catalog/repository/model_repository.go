package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"llm-arena/backend/catalog/models"
	apperrors "llm-arena/backend/pkg/errors"

	"gorm.io/gorm"
)

// ModelRepository persists the model registry
type ModelRepository interface {
	Create(ctx context.Context, model *models.Model) error
	Update(ctx context.Context, model *models.Model) error
	GetByID(ctx context.Context, id string) (*models.Model, error)
	GetByIdentity(ctx context.Context, provider models.Provider, code string) (*models.Model, error)
	List(ctx context.Context, activeOnly bool) ([]models.Model, error)
	// ListByCapability returns active models whose capability set contains capability
	ListByCapability(ctx context.Context, capability string) ([]models.Model, error)
}

type GormModelRepository struct {
	db *gorm.DB
}

func NewGormModelRepository(db *gorm.DB) *GormModelRepository {
	return &GormModelRepository{db: db}
}

func (r *GormModelRepository) Create(ctx context.Context, model *models.Model) error {
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *GormModelRepository) Update(ctx context.Context, model *models.Model) error {
	return r.db.WithContext(ctx).Save(model).Error
}

func (r *GormModelRepository) GetByID(ctx context.Context, id string) (*models.Model, error) {
	var model models.Model
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("model %s: %w", id, apperrors.ErrModelNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &model, nil
}

func (r *GormModelRepository) GetByIdentity(ctx context.Context, provider models.Provider, code string) (*models.Model, error) {
	var model models.Model
	err := r.db.WithContext(ctx).First(&model, "provider = ? AND code = ?", provider, code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("model %s/%s: %w", provider, code, apperrors.ErrModelNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &model, nil
}

func (r *GormModelRepository) List(ctx context.Context, activeOnly bool) ([]models.Model, error) {
	query := r.db.WithContext(ctx).Order("provider, code")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var list []models.Model
	if err := query.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *GormModelRepository) ListByCapability(ctx context.Context, capability string) ([]models.Model, error) {
	needle, err := json.Marshal([]string{capability})
	if err != nil {
		return nil, err
	}
	var list []models.Model
	err = r.db.WithContext(ctx).
		Where("active = ? AND capabilities @> ?::jsonb", true, string(needle)).
		Order("provider, code").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}
