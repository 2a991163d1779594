package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/promptcraft/promptcraft/internal/apperr"
	"github.com/promptcraft/promptcraft/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

// Observer receives the outcome of each upstream call.
type Observer interface {
	ObserveProviderCall(provider, outcome string, elapsed time.Duration)
}

// Outcome labels passed to Observer.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeBreakerOpen = "breaker_open"
)

type registryEntry struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker[string]
}

// Registry dispatches generation calls to providers by identifier.
type Registry struct {
	entries  map[string]registryEntry
	timeout  time.Duration
	observer Observer
}

// Options tune the registry's timeout and circuit breakers.
type Options struct {
	Timeout            time.Duration
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
	Observer           Observer
}

// OptionsFromConfig maps provider config onto registry options.
func OptionsFromConfig(cfg config.ProviderConfig) Options {
	return Options{
		Timeout:            cfg.Timeout,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	}
}

// NewRegistry constructs a Registry over the given providers.
func NewRegistry(opts Options, providers ...Provider) *Registry {
	if opts.BreakerMaxFailures == 0 {
		opts.BreakerMaxFailures = 5
	}
	if opts.BreakerOpenTimeout <= 0 {
		opts.BreakerOpenTimeout = 30 * time.Second
	}
	r := &Registry{
		entries:  make(map[string]registryEntry, len(providers)),
		timeout:  opts.Timeout,
		observer: opts.Observer,
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		id := p.ID()
		maxFailures := opts.BreakerMaxFailures
		r.entries[id] = registryEntry{
			provider: p,
			breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
				Name:        "provider:" + id,
				MaxRequests: 1,
				Timeout:     opts.BreakerOpenTimeout,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= maxFailures
				},
				IsSuccessful: countsAsSuccess,
				OnStateChange: func(name string, from, to gobreaker.State) {
					log.WithFields(log.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("provider: circuit breaker state changed")
				},
			}),
		}
	}
	return r
}

// NewDefaultRegistry builds a registry with the google and openai adapters
// sharing one HTTP client bounded by the configured timeout.
func NewDefaultRegistry(cfg config.ProviderConfig, observer Observer) *Registry {
	client := &http.Client{Timeout: cfg.Timeout}
	opts := OptionsFromConfig(cfg)
	opts.Observer = observer
	return NewRegistry(opts, NewGeminiProvider(client), NewOpenAIProvider(client))
}

// Supports reports whether a provider is registered for id.
func (r *Registry) Supports(id string) bool {
	if r == nil {
		return false
	}
	_, ok := r.entries[strings.TrimSpace(id)]
	return ok
}

// Invoke performs one generation call through the provider registered for providerID.
func (r *Registry) Invoke(ctx context.Context, providerID string, req Request) (string, error) {
	providerID = strings.TrimSpace(providerID)
	entry, ok := r.lookup(providerID)
	if !ok {
		return "", &apperr.UnsupportedProviderError{Provider: providerID}
	}
	if strings.TrimSpace(req.Credential) == "" {
		return "", &apperr.ConfigurationError{Name: req.Model}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	text, err := entry.breaker.Execute(func() (string, error) {
		return entry.provider.Generate(ctx, req)
	})
	elapsed := time.Since(started)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.observe(providerID, OutcomeBreakerOpen, elapsed)
			return "", &apperr.ProviderError{Provider: providerID, Message: "provider temporarily unavailable"}
		}
		r.observe(providerID, OutcomeError, elapsed)
		var providerErr *apperr.ProviderError
		if errors.As(err, &providerErr) {
			return "", providerErr
		}
		return "", &apperr.ProviderError{Provider: providerID, Message: apperr.Redact(err.Error(), req.Credential)}
	}
	r.observe(providerID, OutcomeSuccess, elapsed)
	return text, nil
}

func (r *Registry) lookup(id string) (registryEntry, bool) {
	if r == nil {
		return registryEntry{}, false
	}
	entry, ok := r.entries[id]
	return entry, ok
}

func (r *Registry) observe(provider, outcome string, elapsed time.Duration) {
	if r.observer != nil {
		r.observer.ObserveProviderCall(provider, outcome, elapsed)
	}
}

// countsAsSuccess keeps client-side upstream errors (bad key, bad request)
// from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var providerErr *apperr.ProviderError
	if errors.As(err, &providerErr) {
		status := providerErr.StatusCode
		return status >= 400 && status < 500 && status != http.StatusTooManyRequests
	}
	return false
}
