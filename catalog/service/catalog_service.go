package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"llm-arena/backend/catalog/models"
	"llm-arena/backend/catalog/repository"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"

	"github.com/google/uuid"
)

// RegisterInput describes a model to add to the registry
type RegisterInput struct {
	Provider          models.Provider `json:"provider" yaml:"provider" binding:"required"`
	Code              string          `json:"code" yaml:"code" binding:"required"`
	DisplayName       string          `json:"display_name" yaml:"display_name"`
	Capabilities      []string        `json:"capabilities" yaml:"capabilities"`
	SupportsStreaming *bool           `json:"supports_streaming" yaml:"supports_streaming"`
	MaxTokens         int             `json:"max_tokens" yaml:"max_tokens"`
	Temperature       float64         `json:"temperature" yaml:"temperature"`
	Active            *bool           `json:"active" yaml:"active"`
}

type CatalogService struct {
	repo                  repository.ModelRepository
	log                   *logger.Logger
	maxValidationFailures int
}

func NewCatalogService(repo repository.ModelRepository, log *logger.Logger, maxValidationFailures int) *CatalogService {
	if maxValidationFailures <= 0 {
		maxValidationFailures = 3
	}
	return &CatalogService{
		repo:                  repo,
		log:                   log.WithComponent("catalog"),
		maxValidationFailures: maxValidationFailures,
	}
}

// Register adds a new model. Capabilities are normalised to a lower-case set.
func (s *CatalogService) Register(ctx context.Context, in RegisterInput) (*models.Model, error) {
	if !in.Provider.Valid() {
		return nil, fmt.Errorf("unknown provider %q: %w", in.Provider, apperrors.ErrInvalidArgument)
	}
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, fmt.Errorf("model code is required: %w", apperrors.ErrInvalidArgument)
	}

	model := &models.Model{
		ID:                uuid.NewString(),
		Provider:          in.Provider,
		Code:              code,
		DisplayName:       in.DisplayName,
		Capabilities:      normaliseCapabilities(in.Capabilities),
		SupportsStreaming: boolOr(in.SupportsStreaming, true),
		Active:            boolOr(in.Active, true),
		MaxTokens:         in.MaxTokens,
		Temperature:       in.Temperature,
	}
	if model.DisplayName == "" {
		model.DisplayName = code
	}

	if err := s.repo.Create(ctx, model); err != nil {
		return nil, err
	}
	s.log.Info("Model registered", "model_id", model.ID, "provider", model.Provider, "code", model.Code)
	return model, nil
}

func (s *CatalogService) Get(ctx context.Context, id string) (*models.Model, error) {
	return s.repo.GetByID(ctx, id)
}

// Exists reports whether id refers to a registered model, active or not
func (s *CatalogService) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, apperrors.ErrModelNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetActive returns the model only if it is active
func (s *CatalogService) GetActive(ctx context.Context, id string) (*models.Model, error) {
	model, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.Active {
		return nil, fmt.Errorf("model %s is inactive: %w", id, apperrors.ErrModelNotFound)
	}
	return model, nil
}

func (s *CatalogService) List(ctx context.Context, activeOnly bool) ([]models.Model, error) {
	return s.repo.List(ctx, activeOnly)
}

func (s *CatalogService) ListByCapability(ctx context.Context, capability string) ([]models.Model, error) {
	return s.repo.ListByCapability(ctx, strings.ToLower(strings.TrimSpace(capability)))
}

func (s *CatalogService) SetActive(ctx context.Context, id string, active bool) (*models.Model, error) {
	model, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	model.Active = active
	if active {
		model.ValidationFailures = 0
		model.LastValidationError = ""
	}
	if err := s.repo.Update(ctx, model); err != nil {
		return nil, err
	}
	return model, nil
}

// RecordValidation tracks configuration checks. Consecutive failures past the
// threshold deactivate the model; a success resets the counter.
func (s *CatalogService) RecordValidation(ctx context.Context, id string, ok bool, reason string) (*models.Model, error) {
	model, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if ok {
		model.ValidationFailures = 0
		model.LastValidationError = ""
	} else {
		model.ValidationFailures++
		model.LastValidationError = reason
		if model.Active && model.ValidationFailures >= s.maxValidationFailures {
			model.Active = false
			s.log.Warn("Model deactivated after repeated validation failures",
				"model_id", model.ID,
				"failures", model.ValidationFailures,
				"reason", reason,
			)
		}
	}

	if err := s.repo.Update(ctx, model); err != nil {
		return nil, err
	}
	return model, nil
}

// SelectRandomPair picks two distinct active models, optionally restricted
// to a capability and excluding the given ids. Safe for concurrent use.
func (s *CatalogService) SelectRandomPair(ctx context.Context, capability string, exclude []string) (models.Model, models.Model, error) {
	var (
		candidates []models.Model
		err        error
	)
	if capability != "" {
		candidates, err = s.ListByCapability(ctx, capability)
	} else {
		candidates, err = s.repo.List(ctx, true)
	}
	if err != nil {
		return models.Model{}, models.Model{}, err
	}

	candidates = slices.DeleteFunc(candidates, func(m models.Model) bool {
		return slices.Contains(exclude, m.ID)
	})
	if len(candidates) < 2 {
		return models.Model{}, models.Model{}, fmt.Errorf("need 2 models, have %d: %w", len(candidates), apperrors.ErrNotEnoughModels)
	}

	i := rand.IntN(len(candidates))
	j := rand.IntN(len(candidates) - 1)
	if j >= i {
		j++
	}
	return candidates[i], candidates[j], nil
}

func normaliseCapabilities(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
