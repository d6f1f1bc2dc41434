package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"llm-arena/backend/feedback/models"
	apperrors "llm-arena/backend/pkg/errors"
	ratingmodels "llm-arena/backend/rating/models"
)

type MemoryPreferenceRepository struct {
	mu    sync.Mutex
	prefs map[string]models.Preference
}

func NewMemoryPreferenceRepository() *MemoryPreferenceRepository {
	return &MemoryPreferenceRepository{prefs: make(map[string]models.Preference)}
}

func (r *MemoryPreferenceRepository) Create(_ context.Context, pref *models.Preference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pref.CreatedAt.IsZero() {
		pref.CreatedAt = time.Now()
	}
	r.prefs[pref.ID] = *pref
	return nil
}

func (r *MemoryPreferenceRepository) Get(_ context.Context, id string) (*models.Preference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prefs[id]
	if !ok {
		return nil, fmt.Errorf("preference %s: %w", id, apperrors.ErrPreferenceNotFound)
	}
	return &p, nil
}

func (r *MemoryPreferenceRepository) ListBySession(_ context.Context, sessionID string) ([]models.Preference, error) {
	return r.filter(func(p models.Preference) bool { return p.SessionID == sessionID }), nil
}

func (r *MemoryPreferenceRepository) ListPending(_ context.Context, limit int) ([]models.Preference, error) {
	list := r.filter(func(p models.Preference) bool { return !p.Settled() })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *MemoryPreferenceRepository) Claim(_ context.Context, id string, stage models.Stage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prefs[id]
	if !ok || p.StageApplied(stage) {
		return false, nil
	}
	if stage == models.StageOverall && !p.RatingApplied {
		return false, nil
	}
	setStage(&p, stage, true)
	r.prefs[id] = p
	return true, nil
}

func (r *MemoryPreferenceRepository) Release(_ context.Context, id string, stage models.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.prefs[id]; ok {
		setStage(&p, stage, false)
		r.prefs[id] = p
	}
	return nil
}

func setStage(p *models.Preference, stage models.Stage, applied bool) {
	if stage == models.StageOverall {
		p.OverallApplied = applied
		return
	}
	p.RatingApplied = applied
}

func (r *MemoryPreferenceRepository) ListOutcomes(_ context.Context, since time.Time) ([]ratingmodels.Outcome, error) {
	list := r.filter(func(p models.Preference) bool { return p.RatingApplied && !p.CreatedAt.Before(since) })
	out := make([]ratingmodels.Outcome, 0, len(list))
	for _, p := range list {
		out = append(out, p.Outcome())
	}
	return out, nil
}

func (r *MemoryPreferenceRepository) filter(keep func(models.Preference) bool) []models.Preference {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Preference{}
	for _, p := range r.prefs {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
