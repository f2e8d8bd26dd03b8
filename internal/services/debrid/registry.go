package debrid

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/amaumene/bridgarr/internal/config"
	"github.com/sirupsen/logrus"
)

// Registry holds the configured providers and decides which one serves a requester
type Registry struct {
	providers   map[string]Provider
	defaultName string
	requesters  map[string]string
}

// NewRegistry creates an empty registry whose fallback provider is defaultName
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		defaultName: defaultName,
		requesters:  make(map[string]string),
	}
}

// NewRegistryFromConfig builds a client for every provider that has a credential
func NewRegistryFromConfig(cfg *config.Config, logger *logrus.Logger) (*Registry, error) {
	registry := NewRegistry(cfg.DebridProvider)
	opts := []Option{WithTimeout(cfg.ProviderTimeout)}

	constructors := map[string]func(token string) (Provider, error){
		ProviderRealDebrid: func(token string) (Provider, error) { return NewRealDebridClient(token, logger, opts...) },
		ProviderAllDebrid:  func(token string) (Provider, error) { return NewAllDebridClient(token, logger, opts...) },
		ProviderPremiumize: func(token string) (Provider, error) { return NewPremiumizeClient(token, logger, opts...) },
		ProviderDebridLink: func(token string) (Provider, error) { return NewDebridLinkClient(token, logger, opts...) },
		ProviderTorBox:     func(token string) (Provider, error) { return NewTorBoxClient(token, logger, opts...) },
	}

	for name, build := range constructors {
		token := cfg.ProviderToken(name)
		if token == "" {
			continue
		}
		provider, err := build(token)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", name, err)
		}
		registry.Register(provider)
	}

	for requester, name := range cfg.RequesterProviders {
		registry.AssignRequester(requester, name)
	}

	if _, err := registry.Get(cfg.DebridProvider); err != nil {
		return nil, err
	}
	return registry, nil
}

// Register adds or replaces a provider under its own tag
func (r *Registry) Register(provider Provider) {
	r.providers[provider.Name()] = provider
}

// AssignRequester routes a requester to a provider tag
func (r *Registry) AssignRequester(requester, provider string) {
	r.requesters[strings.ToLower(requester)] = provider
}

// Get returns the provider registered under name
func (r *Registry) Get(name string) (Provider, error) {
	provider, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return provider, nil
}

// ForRequester returns the provider configured for requester, falling back to the default
func (r *Registry) ForRequester(requester string) (Provider, error) {
	if name, ok := r.requesters[strings.ToLower(requester)]; ok && requester != "" {
		return r.Get(name)
	}
	return r.Get(r.defaultName)
}

// Names lists registered provider tags in stable order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateAll checks every registered credential
func (r *Registry) ValidateAll(ctx context.Context) map[string]error {
	results := make(map[string]error, len(r.providers))
	for _, name := range r.Names() {
		valid, err := r.providers[name].ValidateToken(ctx)
		switch {
		case err != nil:
			results[name] = err
		case !valid:
			results[name] = ErrInvalidToken
		default:
			results[name] = nil
		}
	}
	return results
}
