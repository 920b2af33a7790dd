package usecase

import (
	"sync"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
)

// ProtectedSet is the core's read replica of the protected-name set.
// The authoritative copy lives in the vault; the replica is replaced
// wholesale on every refresh, never merged.
type ProtectedSet struct {
	mu    sync.RWMutex
	names []string
}

// NewProtectedSet creates a replica seeded with names.
func NewProtectedSet(names ...string) *ProtectedSet {
	s := &ProtectedSet{}
	s.Replace(names)
	return s
}

// Replace swaps the replica. Order is preserved, case is preserved,
// empty and duplicate entries are dropped.
func (s *ProtectedSet) Replace(names []string) {
	seen := make(map[string]struct{}, len(names))
	next := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		next = append(next, n)
	}

	s.mu.Lock()
	s.names = next
	s.mu.Unlock()
}

// Names returns a copy of the current replica.
func (s *ProtectedSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of protected names.
func (s *ProtectedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Refresh reloads the replica from src. On failure the last-known replica
// is kept and the error is returned so the caller can retry next cycle.
func (s *ProtectedSet) Refresh(src domain.NameSource) error {
	names, err := src.GetProtectedNames()
	if err != nil {
		return err
	}
	s.Replace(names)
	return nil
}
