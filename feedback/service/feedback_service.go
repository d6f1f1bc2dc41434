package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	convmodels "llm-arena/backend/conversation/models"
	"llm-arena/backend/feedback/models"
	"llm-arena/backend/feedback/repository"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"
	ratingmodels "llm-arena/backend/rating/models"
	sessionmodels "llm-arena/backend/session/models"

	"github.com/google/uuid"
)

type SessionLookup interface {
	Get(ctx context.Context, id string) (*sessionmodels.Session, error)
}

type MessageLookup interface {
	GetMessage(ctx context.Context, id string) (*convmodels.Message, error)
}

// RatingApplier is the rating engine's update entry point
type RatingApplier interface {
	ApplyOutcome(ctx context.Context, modelA, modelB string, result ratingmodels.Result, category string) (int, int, error)
}

type LeaderboardInvalidator interface {
	Invalidate(ctx context.Context)
}

// UpdateGate is held around each claim and rating update so a full rebuild
// never sees a claimed preference whose update has not landed
type UpdateGate interface {
	Update() (release func())
}

type openGate struct{}

func (openGate) Update() func() { return func() {} }

type Config struct {
	QueueSize int
	Workers   int

	// SweepInterval re-enqueues preferences that missed the queue
	SweepInterval time.Duration

	// Gate defaults to one that never blocks
	Gate UpdateGate
}

// RecordInput is a preference as submitted. Nil pointers mean "not given".
type RecordInput struct {
	SessionID        string
	UserID           string
	MessageID        *string
	PreferredModelID *string
	Category         *string
}

// Service records preferences and feeds them to the rating engine in the
// background. Each stage of a preference reaches the engine at most once: a
// worker must claim it before applying.
type Service struct {
	repo        repository.PreferenceRepository
	sessions    SessionLookup
	messages    MessageLookup
	ratings     RatingApplier
	leaderboard LeaderboardInvalidator
	cfg         Config
	queue       chan string
	log         *logger.Logger
	wg          sync.WaitGroup
}

func NewService(repo repository.PreferenceRepository, sessions SessionLookup, messages MessageLookup, ratings RatingApplier, leaderboard LeaderboardInvalidator, cfg Config, log *logger.Logger) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Gate == nil {
		cfg.Gate = openGate{}
	}
	return &Service{
		repo:        repo,
		sessions:    sessions,
		messages:    messages,
		ratings:     ratings,
		leaderboard: leaderboard,
		cfg:         cfg,
		queue:       make(chan string, cfg.QueueSize),
		log:         log.WithComponent("feedback"),
	}
}

// RecordPreference stores a verdict on a compare session and queues the
// rating update. It returns before ratings change.
func (s *Service) RecordPreference(ctx context.Context, in RecordInput) (*models.Preference, error) {
	session, err := s.sessions.Get(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.Mode.Pairwise() || session.ModelBID == nil {
		return nil, fmt.Errorf("session %s has a single model: %w", session.ID, apperrors.ErrInvalidOutcome)
	}

	result, err := resultFor(session, in.PreferredModelID)
	if err != nil {
		return nil, err
	}

	if in.MessageID != nil && *in.MessageID != "" {
		msg, err := s.messages.GetMessage(ctx, *in.MessageID)
		if err != nil {
			return nil, err
		}
		if msg.SessionID != session.ID {
			return nil, fmt.Errorf("message %s is not in session %s: %w", msg.ID, session.ID, apperrors.ErrMessageNotFound)
		}
	} else {
		in.MessageID = nil
	}

	pref := &models.Preference{
		ID:               uuid.NewString(),
		SessionID:        session.ID,
		MessageID:        in.MessageID,
		UserID:           in.UserID,
		ModelAID:         session.ModelAID,
		ModelBID:         *session.ModelBID,
		PreferredModelID: in.PreferredModelID,
		Category:         normaliseCategory(in.Category),
		Result:           result,
	}
	if err := s.repo.Create(ctx, pref); err != nil {
		return nil, fmt.Errorf("store preference: %w", err)
	}

	s.log.Info("Preference recorded",
		"preference_id", pref.ID,
		"session_id", pref.SessionID,
		"result", pref.Result,
		"category", pref.Category,
	)
	s.enqueue(pref.ID)
	return pref, nil
}

func (s *Service) ListBySession(ctx context.Context, sessionID string) ([]models.Preference, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListBySession(ctx, sessionID)
}

func resultFor(session *sessionmodels.Session, preferred *string) (ratingmodels.Result, error) {
	switch {
	case preferred == nil || *preferred == "":
		return ratingmodels.ResultTie, nil
	case *preferred == session.ModelAID:
		return ratingmodels.ResultAWins, nil
	case *preferred == *session.ModelBID:
		return ratingmodels.ResultBWins, nil
	default:
		return "", fmt.Errorf("model %s did not take part in session %s: %w", *preferred, session.ID, apperrors.ErrInvalidOutcome)
	}
}

func normaliseCategory(c *string) string {
	if c == nil {
		return ratingmodels.CategoryOverall
	}
	if v := strings.ToLower(strings.TrimSpace(*c)); v != "" {
		return v
	}
	return ratingmodels.CategoryOverall
}

// enqueue never blocks. A full queue leaves the preference pending for the
// next sweep.
func (s *Service) enqueue(id string) {
	select {
	case s.queue <- id:
	default:
		s.log.Warn("Feedback queue full, deferring rating update", "preference_id", id)
	}
}
