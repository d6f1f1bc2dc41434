package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/rating/models"
)

type memoryEntry struct {
	mu  sync.Mutex
	rec models.Record
}

// MemoryStore keeps records in process. Each record has its own mutex, so
// pair updates on disjoint models never contend.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[recordKey]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[recordKey]*memoryEntry)}
}

func (s *MemoryStore) GetRating(_ context.Context, modelID, category string, period models.Period) (models.Record, error) {
	s.mu.RLock()
	e, ok := s.entries[recordKey{modelID: modelID, category: category, period: period}]
	s.mu.RUnlock()
	if !ok {
		return models.NewRecord(modelID, category, period), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, nil
}

func (s *MemoryStore) entry(r models.Record) *memoryEntry {
	k := keyOf(r)

	s.mu.RLock()
	e, ok := s.entries[k]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[k]; ok {
		return e
	}
	e = &memoryEntry{rec: models.NewRecord(r.ModelID, r.Category, r.Period)}
	s.entries[k] = e
	return e
}

func (s *MemoryStore) AtomicUpdatePair(_ context.Context, a, b models.Record, deltaA, deltaB int, countsA, countsB models.OutcomeCounts) error {
	if keyOf(a) == keyOf(b) {
		return fmt.Errorf("pair update on a single record: %w", apperrors.ErrInvalidOutcome)
	}
	ea, eb := s.entry(a), s.entry(b)

	first, second := ea, eb
	if keyOf(b).less(keyOf(a)) {
		first, second = eb, ea
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if ea.rec.Version != a.Version || eb.rec.Version != b.Version {
		return fmt.Errorf("rating pair changed since read: %w", apperrors.ErrConcurrencyConflict)
	}

	now := time.Now()
	ea.rec.Apply(deltaA, countsA)
	ea.rec.Version++
	ea.rec.UpdatedAt = now
	eb.rec.Apply(deltaB, countsB)
	eb.rec.Version++
	eb.rec.UpdatedAt = now
	return nil
}

func (s *MemoryStore) TopN(_ context.Context, category string, period models.Period, limit int) ([]models.Record, error) {
	s.mu.RLock()
	var list []models.Record
	for k, e := range s.entries {
		if k.category != category || k.period != period {
			continue
		}
		e.mu.Lock()
		if e.rec.TotalComparisons > 0 {
			list = append(list, e.rec)
		}
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Rating != list[j].Rating {
			return list[i].Rating > list[j].Rating
		}
		if list[i].TotalComparisons != list[j].TotalComparisons {
			return list[i].TotalComparisons > list[j].TotalComparisons
		}
		return list[i].ModelID < list[j].ModelID
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *MemoryStore) ReplacePeriod(_ context.Context, period models.Period, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.entries {
		if k.period == period {
			delete(s.entries, k)
		}
	}
	now := time.Now()
	for _, r := range records {
		r.Period = period
		r.Version = 1
		r.UpdatedAt = now
		s.entries[keyOf(r)] = &memoryEntry{rec: r}
	}
	return nil
}
