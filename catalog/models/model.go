package models

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// Provider is the vendor serving a model
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderMeta      Provider = "meta"
	ProviderMistral   Provider = "mistral"
	ProviderCohere    Provider = "cohere"
	ProviderGrok      Provider = "grok"
)

// Valid reports whether p is a known provider
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderMeta,
		ProviderMistral, ProviderCohere, ProviderGrok:
		return true
	}
	return false
}

// Model is a registered AI backend. Provider and Code never change after
// registration; a model is deactivated rather than deleted.
type Model struct {
	ID                  string                      `json:"id" gorm:"primaryKey;size:36"`
	Provider            Provider                    `json:"provider" gorm:"size:32;not null;uniqueIndex:idx_model_identity"`
	Code                string                      `json:"code" gorm:"size:128;not null;uniqueIndex:idx_model_identity"`
	DisplayName         string                      `json:"display_name" gorm:"size:255"`
	Capabilities        datatypes.JSONSlice[string] `json:"capabilities" gorm:"type:jsonb"`
	SupportsStreaming   bool                        `json:"supports_streaming"`
	Active              bool                        `json:"active" gorm:"index"`
	MaxTokens           int                         `json:"max_tokens"`
	Temperature         float64                     `json:"temperature"`
	ValidationFailures  int                         `json:"validation_failures"`
	LastValidationError string                      `json:"last_validation_error,omitempty"`
	CreatedAt           time.Time                   `json:"created_at"`
	UpdatedAt           time.Time                   `json:"updated_at"`
}

func (Model) TableName() string {
	return "ai_models"
}

// HasCapability reports whether capability is in the model's tag set
func (m Model) HasCapability(capability string) bool {
	return slices.Contains(m.Capabilities, capability)
}
