package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"llm-arena/backend/catalog/models"
	apperrors "llm-arena/backend/pkg/errors"
)

// MemoryModelRepository keeps the registry in process. Used by tests and the
// recompute CLI when no database is configured.
type MemoryModelRepository struct {
	mu     sync.RWMutex
	models map[string]models.Model
}

func NewMemoryModelRepository() *MemoryModelRepository {
	return &MemoryModelRepository{models: make(map[string]models.Model)}
}

func (r *MemoryModelRepository) Create(_ context.Context, model *models.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.models {
		if existing.Provider == model.Provider && existing.Code == model.Code {
			return fmt.Errorf("model %s/%s already registered: %w", model.Provider, model.Code, apperrors.ErrInvalidArgument)
		}
	}
	now := time.Now()
	model.CreatedAt, model.UpdatedAt = now, now
	r.models[model.ID] = clone(*model)
	return nil
}

func (r *MemoryModelRepository) Update(_ context.Context, model *models.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[model.ID]; !ok {
		return fmt.Errorf("model %s: %w", model.ID, apperrors.ErrModelNotFound)
	}
	model.UpdatedAt = time.Now()
	r.models[model.ID] = clone(*model)
	return nil
}

func (r *MemoryModelRepository) GetByID(_ context.Context, id string) (*models.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[id]
	if !ok {
		return nil, fmt.Errorf("model %s: %w", id, apperrors.ErrModelNotFound)
	}
	out := clone(m)
	return &out, nil
}

func (r *MemoryModelRepository) GetByIdentity(_ context.Context, provider models.Provider, code string) (*models.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.models {
		if m.Provider == provider && m.Code == code {
			out := clone(m)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("model %s/%s: %w", provider, code, apperrors.ErrModelNotFound)
}

func (r *MemoryModelRepository) List(_ context.Context, activeOnly bool) ([]models.Model, error) {
	return r.filter(func(m models.Model) bool { return !activeOnly || m.Active }), nil
}

func (r *MemoryModelRepository) ListByCapability(_ context.Context, capability string) ([]models.Model, error) {
	return r.filter(func(m models.Model) bool { return m.Active && m.HasCapability(capability) }), nil
}

func (r *MemoryModelRepository) filter(keep func(models.Model) bool) []models.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Model
	for _, m := range r.models {
		if keep(m) {
			out = append(out, clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func clone(m models.Model) models.Model {
	m.Capabilities = append([]string(nil), m.Capabilities...)
	return m
}
