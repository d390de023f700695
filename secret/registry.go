package secret

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// ProviderFactory builds a Provider from the options under its name in the
// secrets config section.
type ProviderFactory func(opts map[string]any) (Provider, error)

// Registry maps provider names to factories. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	factory map[string]ProviderFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factory: make(map[string]ProviderFactory)}
}

// Register adds factory under name. Names are unique.
func (r *Registry) Register(name string, factory ProviderFactory) error {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		return errors.New("secret: provider registration needs a name and a factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factory[name]; dup {
		return fmt.Errorf("secret: provider %q already registered", name)
	}
	r.factory[name] = factory
	return nil
}

// Create builds the provider registered as name.
func (r *Registry) Create(name string, opts map[string]any) (Provider, error) {
	r.mu.RLock()
	factory := r.factory[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	p, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("secret: create %s provider: %w", name, err)
	}
	return p, nil
}

// List returns the registered names in order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factory))
}

// DefaultRegistry knows the built-in providers:
//
//	env:  {prefix: STAFFCACHE_}   ref names a variable, read as prefix+ref
//	file: {dir: /run/secrets}     ref names a file under dir
var DefaultRegistry = NewRegistry()

func init() {
	_ = DefaultRegistry.Register("env", func(opts map[string]any) (Provider, error) {
		prefix, _ := opts["prefix"].(string)
		return NewEnvProvider(prefix), nil
	})
	_ = DefaultRegistry.Register("file", func(opts map[string]any) (Provider, error) {
		dir, _ := opts["dir"].(string)
		if dir == "" {
			return nil, errors.New("file provider needs dir")
		}
		return NewFileProvider(dir)
	})
}
