package provider

import (
	"context"
	"fmt"
	"sync"

	catalogmodels "llm-arena/backend/catalog/models"
	"llm-arena/backend/pkg/config"
	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/pkg/resilience"
	"llm-arena/backend/pkg/secrets"
)

// Registry routes completions to the backend serving a model's provider
type Registry struct {
	mu       sync.RWMutex
	backends map[catalogmodels.Provider]Backend
	defaults Options
}

func NewRegistry(defaults Options) *Registry {
	return &Registry{backends: make(map[catalogmodels.Provider]Backend), defaults: defaults}
}

func (r *Registry) Register(p catalogmodels.Provider, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[p] = backend
}

func (r *Registry) backend(p catalogmodels.Provider) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[p]
	return b, ok
}

// Providers lists the providers with a registered backend
func (r *Registry) Providers() []catalogmodels.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]catalogmodels.Provider, 0, len(r.backends))
	for p := range r.backends {
		out = append(out, p)
	}
	return out
}

// StreamCompletion resolves the model's backend and fills unset options from
// the model and then the registry defaults.
func (r *Registry) StreamCompletion(ctx context.Context, model *catalogmodels.Model, history []Message, opts Options) (<-chan Fragment, error) {
	b, ok := r.backend(model.Provider)
	if !ok {
		return nil, adapterError(string(model.Provider), model.Code, fmt.Errorf("no backend configured for provider %s", model.Provider))
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = model.MaxTokens
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = r.defaults.MaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = model.Temperature
	}
	if opts.Temperature == 0 {
		opts.Temperature = r.defaults.Temperature
	}
	return b.StreamCompletion(ctx, history, model.Code, opts)
}

// NewRegistryFromConfig registers a guarded backend for every provider whose
// API key the secrets manager can resolve.
func NewRegistryFromConfig(ctx context.Context, cfg *config.Config, log *logger.Logger) *Registry {
	reg := NewRegistry(Options{
		MaxTokens:   cfg.Providers.DefaultMaxTokens,
		Temperature: cfg.Providers.DefaultTemperature,
	})
	log = log.WithComponent("provider")

	guard := func(b Backend) Backend {
		breaker := resilience.DefaultCircuitBreakerConfig(b.Name())
		if cfg.Providers.BreakerFailures > 0 {
			breaker.FailureThreshold = cfg.Providers.BreakerFailures
		}
		if cfg.Providers.BreakerRetryWindow > 0 {
			breaker.RetryTimeout = cfg.Providers.BreakerRetryWindow
		}
		return NewGuarded(b, GuardConfig{
			RequestsPerSecond: cfg.Providers.RequestsPerSecond,
			Burst:             cfg.Providers.Burst,
			Breaker:           breaker,
		}, log)
	}

	if key, err := secrets.GetSecret(ctx, "openai.api-key"); err == nil {
		reg.Register(catalogmodels.ProviderOpenAI, guard(NewOpenAIBackend("openai", key, cfg.Providers.OpenAIBaseURL)))
	} else {
		log.Warn("OpenAI backend disabled", "error", err.Error())
	}

	if key, err := secrets.GetSecret(ctx, "anthropic.api-key"); err == nil {
		reg.Register(catalogmodels.ProviderAnthropic, guard(NewAnthropicBackend(key, cfg.Providers.AnthropicBaseURL, nil)))
	} else {
		log.Warn("Anthropic backend disabled", "error", err.Error())
	}

	// Vendors exposing an OpenAI-compatible endpoint
	compatible := map[catalogmodels.Provider]string{
		catalogmodels.ProviderMistral: "https://api.mistral.ai/v1",
		catalogmodels.ProviderGrok:    "https://api.x.ai/v1",
	}
	for p, baseURL := range compatible {
		key, err := secrets.GetSecret(ctx, string(p)+".api-key")
		if err != nil {
			continue
		}
		reg.Register(p, guard(NewOpenAIBackend(string(p), key, baseURL)))
	}

	log.Info("Model backends registered", "providers", reg.Providers())
	return reg
}
