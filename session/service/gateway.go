package service

import (
	"context"
	"fmt"

	catalogmodels "llm-arena/backend/catalog/models"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/session/models"
	"llm-arena/backend/session/repository"

	"github.com/google/uuid"
)

// ModelCatalog is the slice of the model registry sessions depend on
type ModelCatalog interface {
	GetActive(ctx context.Context, id string) (*catalogmodels.Model, error)
	SelectRandomPair(ctx context.Context, capability string, exclude []string) (catalogmodels.Model, catalogmodels.Model, error)
}

type CreateInput struct {
	UserID     string
	Mode       models.Mode
	ModelAID   string
	ModelBID   string
	Title      string
	Capability string
}

type Gateway struct {
	repo    repository.SessionRepository
	catalog ModelCatalog
	log     *logger.Logger
}

func NewGateway(repo repository.SessionRepository, catalog ModelCatalog, log *logger.Logger) *Gateway {
	return &Gateway{repo: repo, catalog: catalog, log: log.WithComponent("session")}
}

// Create validates the model selection for the mode and stores the session.
// Random mode ignores any requested models and draws two active ones.
func (g *Gateway) Create(ctx context.Context, in CreateInput) (*models.Session, error) {
	if !in.Mode.Valid() {
		return nil, fmt.Errorf("unknown mode %q: %w", in.Mode, apperrors.ErrInvalidArgument)
	}

	session := &models.Session{
		ID:       uuid.NewString(),
		UserID:   in.UserID,
		Mode:     in.Mode,
		Title:    in.Title,
		Metadata: map[string]any{},
	}

	switch in.Mode {
	case models.ModeDirect:
		if in.ModelAID == "" {
			return nil, fmt.Errorf("direct mode needs a model: %w", apperrors.ErrInvalidArgument)
		}
		if _, err := g.catalog.GetActive(ctx, in.ModelAID); err != nil {
			return nil, err
		}
		session.ModelAID = in.ModelAID

	case models.ModeCompare:
		if in.ModelAID == "" || in.ModelBID == "" || in.ModelAID == in.ModelBID {
			return nil, fmt.Errorf("compare mode needs two distinct models: %w", apperrors.ErrInvalidArgument)
		}
		for _, id := range []string{in.ModelAID, in.ModelBID} {
			if _, err := g.catalog.GetActive(ctx, id); err != nil {
				return nil, err
			}
		}
		session.ModelAID = in.ModelAID
		session.ModelBID = &in.ModelBID

	case models.ModeRandom:
		a, b, err := g.catalog.SelectRandomPair(ctx, in.Capability, nil)
		if err != nil {
			return nil, err
		}
		session.ModelAID = a.ID
		session.ModelBID = &b.ID
		session.Metadata["selection_method"] = "random"
		if in.Capability != "" {
			session.Metadata["capability"] = in.Capability
		}
	}

	if err := g.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	g.log.Info("Session created", "session_id", session.ID, "mode", session.Mode, "user_id", session.UserID)
	return session, nil
}

func (g *Gateway) Get(ctx context.Context, id string) (*models.Session, error) {
	return g.repo.GetByID(ctx, id)
}

func (g *Gateway) ListByUser(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return g.repo.ListByUser(ctx, userID, limit)
}

// ResolveParticipantModels returns the models answering turns in session.
// modelB is nil in direct mode. A model deactivated since the session was
// created fails with ErrModelNotFound.
func (g *Gateway) ResolveParticipantModels(ctx context.Context, session *models.Session) (*catalogmodels.Model, *catalogmodels.Model, error) {
	modelA, err := g.catalog.GetActive(ctx, session.ModelAID)
	if err != nil {
		return nil, nil, err
	}
	if !session.Mode.Pairwise() || session.ModelBID == nil {
		return modelA, nil, nil
	}
	modelB, err := g.catalog.GetActive(ctx, *session.ModelBID)
	if err != nil {
		return nil, nil, err
	}
	return modelA, modelB, nil
}
