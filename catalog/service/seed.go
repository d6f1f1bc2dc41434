package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	apperrors "llm-arena/backend/pkg/errors"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Models []RegisterInput `yaml:"models"`
}

// SeedFromFile registers every model listed in a YAML file that is not
// already present. Existing models are left untouched. Returns the number
// of models created.
func (s *CatalogService) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog seed: %w", err)
	}
	return s.Seed(ctx, data)
}

// Seed is SeedFromFile over an in-memory YAML document
func (s *CatalogService) Seed(ctx context.Context, data []byte) (int, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse catalog seed: %w", err)
	}

	created := 0
	for _, in := range file.Models {
		_, err := s.repo.GetByIdentity(ctx, in.Provider, in.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, apperrors.ErrModelNotFound) {
			return created, err
		}
		if _, err := s.Register(ctx, in); err != nil {
			return created, fmt.Errorf("seed %s/%s: %w", in.Provider, in.Code, err)
		}
		created++
	}

	s.log.Info("Catalog seeded", "created", created, "listed", len(file.Models))
	return created, nil
}
