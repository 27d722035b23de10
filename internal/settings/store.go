package settings

import "sync"

// Store holds the effective Config shared between the session loop and the
// settings watcher.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore returns a Store holding cfg.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Get returns a copy of the current Config.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetConnection replaces every setting except the symbol catalogs, which
// are fixed for the life of the session.
func (s *Store) SetConnection(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.Symbols = s.cfg.Symbols
	s.cfg = cfg
}
