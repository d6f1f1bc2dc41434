package service

import (
	"context"
	"errors"
	"time"

	"llm-arena/backend/feedback/models"
	apperrors "llm-arena/backend/pkg/errors"
)

const sweepBatch = 500

// Start launches the rating workers and the pending sweep. They stop when
// ctx is done; Wait blocks until they have.
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.work(ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweepLoop(ctx)
	}()
	s.log.Info("Feedback workers started", "workers", s.cfg.Workers, "queue_size", s.cfg.QueueSize)
}

func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.apply(ctx, id)
		}
	}
}

func (s *Service) sweepLoop(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep re-enqueues preferences with an unclaimed stage, e.g. because the
// queue was full, an update failed or the process stopped first
func (s *Service) sweep(ctx context.Context) {
	pending, err := s.repo.ListPending(ctx, sweepBatch)
	if err != nil {
		if ctx.Err() == nil {
			s.log.LogError(err, "Failed to list pending preferences")
		}
		return
	}
	for _, p := range pending {
		s.enqueue(p.ID)
	}
	if len(pending) > 0 {
		s.log.Info("Re-queued pending preferences", "count", len(pending))
	}
}

// apply runs the category update of a preference, then the overall one when
// the category is a specific one. Each stage is claimed on its own so a
// failed overall update is retried without repeating the category.
func (s *Service) apply(ctx context.Context, id string) {
	log := s.log.With("preference_id", id)

	pref, err := s.repo.Get(ctx, id)
	if err != nil {
		log.LogError(err, "Failed to load preference")
		return
	}

	updated := false
	for _, stage := range pref.Stages() {
		if pref.StageApplied(stage) {
			continue
		}
		ok, err := s.applyStage(ctx, pref, stage)
		if err != nil {
			log.LogError(err, "Rating update failed", "stage", stage, "category", pref.CategoryFor(stage))
			if stage == models.StageCategory && !retryable(err) {
				// the overall update would fail the same way
				s.drop(ctx, id, models.StageOverall)
			}
			break
		}
		updated = updated || ok
	}

	if updated {
		s.leaderboard.Invalidate(ctx)
	}
}

// applyStage reports false without error when another worker holds the stage
func (s *Service) applyStage(ctx context.Context, pref *models.Preference, stage models.Stage) (bool, error) {
	release := s.cfg.Gate.Update()
	defer release()

	claimed, err := s.repo.Claim(ctx, pref.ID, stage)
	if err != nil || !claimed {
		return false, err
	}

	category := pref.CategoryFor(stage)
	newA, newB, err := s.ratings.ApplyOutcome(ctx, pref.ModelAID, pref.ModelBID, pref.Result, category)
	if err != nil {
		if retryable(err) {
			s.release(ctx, pref.ID, stage)
		}
		return false, err
	}
	s.log.Debug("Rating updated", "preference_id", pref.ID, "category", category, "rating_a", newA, "rating_b", newB)
	return true, nil
}

// retryable reports whether a later attempt could succeed. Outcomes naming
// unknown models never will.
func retryable(err error) bool {
	return !errors.Is(err, apperrors.ErrInvalidOutcome) && !errors.Is(err, apperrors.ErrModelNotFound)
}

func (s *Service) release(ctx context.Context, id string, stage models.Stage) {
	if err := s.repo.Release(context.WithoutCancel(ctx), id, stage); err != nil {
		s.log.LogError(err, "Failed to release preference", "preference_id", id, "stage", stage)
	}
}

// drop claims a stage without applying it so the sweep stops offering it
func (s *Service) drop(ctx context.Context, id string, stage models.Stage) {
	if _, err := s.repo.Claim(context.WithoutCancel(ctx), id, stage); err != nil {
		s.log.LogError(err, "Failed to drop preference stage", "preference_id", id, "stage", stage)
	}
}
