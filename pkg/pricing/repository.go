package pricing

import (
	"sort"
	"sync"
)

// Repository looks up pricing configs by static name. Implementations must
// treat inactive configs as absent.
type Repository interface {
	// Get returns the active config for a static name, or NotFoundError.
	Get(staticName string) (*Config, error)

	// List returns all active configs sorted by static name.
	List() []*Config
}

// StaticRepository is an in-memory Repository backed by a config catalog.
// Reload swaps the full catalog atomically, which is how config hot reload
// reaches running components without restarting them.
type StaticRepository struct {
	mu      sync.RWMutex
	configs map[string]*Config
}

// NewStaticRepository builds a repository from a catalog of configs.
// Every config is validated; the first invalid one fails the construction.
func NewStaticRepository(configs []*Config) (*StaticRepository, error) {
	r := &StaticRepository{}
	if err := r.Reload(configs); err != nil {
		return nil, err
	}
	return r, nil
}

// Get implements Repository.
func (r *StaticRepository) Get(staticName string) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[staticName]
	if !ok || !cfg.Active {
		return nil, &NotFoundError{StaticName: staticName}
	}
	return cfg, nil
}

// List implements Repository.
func (r *StaticRepository) List() []*Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Config, 0, len(r.configs))
	for _, cfg := range r.configs {
		if cfg.Active {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StaticName < out[j].StaticName })
	return out
}

// Reload replaces the catalog. On validation failure the existing catalog
// stays in place, so a bad reload never leaves the repository empty.
func (r *StaticRepository) Reload(configs []*Config) error {
	next := make(map[string]*Config, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return err
		}
		c := *cfg
		next[c.StaticName] = &c
	}

	r.mu.Lock()
	r.configs = next
	r.mu.Unlock()
	return nil
}
