// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// ModelRef names a model on a provider. Its text form is "provider/model";
// everything after the first slash is the model, so OpenRouter ids such as
// "openrouter/openai/gpt-4.1" keep their vendor prefix.
type ModelRef struct {
	Provider string
	Model    string
}

// ParseModelRef parses "provider/model".
func ParseModelRef(s string) (ModelRef, error) {
	prov, model, ok := strings.Cut(s, "/")
	if !ok || prov == "" || model == "" {
		return ModelRef{}, wrenerr.Errorf(wrenerr.CodeProviderInvalidModelRef,
			"model name %q must use provider/model format", s)
	}
	return ModelRef{Provider: prov, Model: model}, nil
}

func (r ModelRef) String() string { return r.Provider + "/" + r.Model }

// Registry holds the configured providers and decides which one serves a
// request. Lookup order for a purpose ("reply", "summarize", "notes") is
// the purpose override, then the default, then the failover chain, skipping
// providers that are unavailable.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider

	fallback  *ModelRef
	overrides map[string]ModelRef
	failover  []ModelRef
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		overrides: make(map[string]ModelRef),
	}
}

// Register adds p under name, replacing any earlier provider of that name.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	r.providers[name] = p
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(name)
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health snapshots every provider that implements HealthReporter.
func (r *Registry) Health() map[string]HealthMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]HealthMetrics, len(r.providers))
	for name, p := range r.providers {
		if hr, ok := p.(HealthReporter); ok {
			out[name] = hr.HealthMetrics()
		}
	}
	return out
}

// SetDefault sets the model used when a purpose has no override.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mr, err := r.registeredRefLocked("SetDefault", ref)
	if err != nil {
		return err
	}
	r.fallback = &mr
	return nil
}

// SetOverride routes one purpose to a specific model.
func (r *Registry) SetOverride(purpose, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mr, err := r.registeredRefLocked("SetOverride", ref)
	if err != nil {
		return err
	}
	r.overrides[purpose] = mr
	return nil
}

// SetFailover replaces the failover chain. Nothing is changed when any ref
// is invalid.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	refs := make([]ModelRef, 0, len(chain))
	for _, ref := range chain {
		mr, err := r.registeredRefLocked("SetFailover", ref)
		if err != nil {
			return err
		}
		refs = append(refs, mr)
	}
	r.failover = refs
	return nil
}

// MaxAttempts is the number of distinct candidates a caller may try: the
// primary plus the failover chain.
func (r *Registry) MaxAttempts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return 1 + len(r.failover)
}

// Route picks a provider and model for purpose. A non-empty modelName other
// than "default" must be a "provider/model" ref and bypasses the purpose
// lookup.
func (r *Registry) Route(ctx context.Context, purpose, modelName string) (Provider, string, error) {
	return r.RouteExcluding(ctx, purpose, modelName, nil)
}

// RouteExcluding is Route with the named providers skipped. Callers pass
// the providers that already failed this request.
func (r *Registry) RouteExcluding(ctx context.Context, purpose, modelName string, exclude []string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary, err := r.primaryLocked(purpose, modelName)
	if err != nil {
		return nil, "", err
	}

	for _, ref := range append([]ModelRef{primary}, r.failover...) {
		if slices.Contains(exclude, ref.Provider) {
			continue
		}
		p, ok := r.providers[ref.Provider]
		if ok && p.Available(ctx) {
			return p, ref.Model, nil
		}
	}

	return nil, "", wrenerr.New(wrenerr.CodeProviderAllUnavailable,
		"all providers unavailable: no healthy provider found")
}

// Close closes every provider and joins their errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return wrenerr.Join(errs...)
	}
	return nil
}

func (r *Registry) primaryLocked(purpose, modelName string) (ModelRef, error) {
	if modelName != "" && modelName != "default" {
		return ParseModelRef(modelName)
	}
	if mr, ok := r.overrides[purpose]; ok && purpose != "" {
		return mr, nil
	}
	if r.fallback == nil {
		return ModelRef{}, wrenerr.New(wrenerr.CodeProviderNoDefault, "no default provider configured")
	}
	return *r.fallback, nil
}

func (r *Registry) registeredRefLocked(op, ref string) (ModelRef, error) {
	mr, err := ParseModelRef(ref)
	if err != nil {
		return ModelRef{}, err
	}
	if _, err := r.lookupLocked(mr.Provider); err != nil {
		return ModelRef{}, wrenerr.New(wrenerr.CodeProviderNotFound,
			op+": provider not registered: "+mr.Provider, wrenerr.FieldProvider(mr.Provider))
	}
	return mr, nil
}

func (r *Registry) lookupLocked(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, wrenerr.New(wrenerr.CodeProviderNotFound,
			"provider not found: "+name, wrenerr.FieldProvider(name))
	}
	return p, nil
}
