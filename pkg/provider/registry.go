package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry routes model identifiers to backends. Routing is resolved from
// configuration before a pipeline is created; the pipeline treats the
// chosen backend as a given. The registry is immutable after construction
// and safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	byName      map[string]Provider
	modelRoutes map[string]string // model -> backend name
	defaultName string
}

// NewRegistry creates a Registry over the given backends. modelRoutes maps
// model identifiers to backend names; defaultName (optional) serves models
// with no explicit route.
func NewRegistry(backends map[string]Provider, modelRoutes map[string]string, defaultName string) (*Registry, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("registry: at least one backend is required")
	}
	if defaultName != "" {
		if _, ok := backends[defaultName]; !ok {
			return nil, fmt.Errorf("registry: default backend %q is not configured", defaultName)
		}
	}
	for model, name := range modelRoutes {
		if _, ok := backends[name]; !ok {
			return nil, fmt.Errorf("registry: model %q routes to unknown backend %q", model, name)
		}
	}
	return &Registry{
		byName:      backends,
		modelRoutes: modelRoutes,
		defaultName: defaultName,
	}, nil
}

// Resolve returns the backend serving the given model, along with its
// configured name.
func (r *Registry) Resolve(model string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := r.modelRoutes[model]; ok {
		return r.byName[name], name, nil
	}
	if r.defaultName != "" {
		return r.byName[r.defaultName], r.defaultName, nil
	}
	return nil, "", fmt.Errorf("no backend configured for model %q", model)
}

// Models returns the model identifiers with explicit routes, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.modelRoutes))
	for m := range r.modelRoutes {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Backends returns all registered backends keyed by name.
func (r *Registry) Backends() map[string]Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Provider, len(r.byName))
	for k, v := range r.byName {
		out[k] = v
	}
	return out
}

// Close closes every backend, returning the first error.
func (r *Registry) Close() error {
	var first error
	for _, p := range r.Backends() {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
