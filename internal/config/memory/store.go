// Package memory provides an in-memory config.Store implementation.
// Intended for testing. Configuration is not persisted across restarts.
package memory

import (
	"context"
	"sync"

	"vaultgc/internal/config"
)

// Store is an in-memory config.Store implementation.
type Store struct {
	mu  sync.RWMutex
	cfg *config.Config
}

var _ config.Store = (*Store)(nil)

// NewStore creates a new, empty in-memory config.Store.
func NewStore() *Store {
	return &Store{}
}

// Load returns a deep copy of the stored configuration, or nil if Save has
// never been called.
func (s *Store) Load(ctx context.Context) (*config.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg == nil {
		return nil, nil
	}
	cp := deepCopy(*s.cfg)
	return &cp, nil
}

// Save stores a deep copy of cfg, replacing any previous configuration.
func (s *Store) Save(ctx context.Context, cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := deepCopy(*cfg)
	s.cfg = &cp
	return nil
}

func deepCopy(cfg config.Config) config.Config {
	cp := config.Config{
		Repositories: make([]config.RepositoryConfig, len(cfg.Repositories)),
		Clients:      make([]config.ClientConfig, len(cfg.Clients)),
		Schedules:    make([]config.ScheduleConfig, len(cfg.Schedules)),
		Audit:        cfg.Audit,
	}
	for i, r := range cfg.Repositories {
		cp.Repositories[i] = r
		if r.Params != nil {
			params := make(map[string]string, len(r.Params))
			for k, v := range r.Params {
				params[k] = v
			}
			cp.Repositories[i].Params = params
		}
	}
	copy(cp.Clients, cfg.Clients)
	copy(cp.Schedules, cfg.Schedules)
	if cfg.Audit.Brokers != nil {
		brokers := make([]string, len(cfg.Audit.Brokers))
		copy(brokers, cfg.Audit.Brokers)
		cp.Audit.Brokers = brokers
	}
	return cp
}
