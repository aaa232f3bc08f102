package store

import (
	"context"
	"sync"

	"github.com/nordkirke/cas-authority/internal/cas"
)

// MemoryStore is the default SessionStorage: three maps under one
// sync.RWMutex, the same multi-map-under-one-lock shape the vendored
// gourdiantoken token repository uses for its revoked/rotated token sets
// (gourdiantoken.repository.inmemory.imp.go), generalized from token
// hashes to full Session objects and from a single index to the three
// a caller actually needs: by id, by access id, by principal.
//
// The lock here only ever guards index bookkeeping; mutation of a single
// Session's own fields is serialized by the Session's own mutex, so two
// goroutines updating two different sessions never contend on this lock
// for longer than a map operation.
type MemoryStore struct {
	mu          sync.RWMutex
	byID        map[string]*cas.Session
	byAccessID  map[string]string // access id -> owning session id
	byPrincipal map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:        map[string]*cas.Session{},
		byAccessID:  map[string]string{},
		byPrincipal: map[string]map[string]struct{}{},
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, s *cas.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byID[s.ID()] = s
	m.indexAccessesLocked(s)
	m.indexPrincipalLocked(s)
	return nil
}

// UpdateSession refreshes the access-id index for the session's current
// access set: newly-granted accesses (with RequiresStorage) are indexed,
// accesses that are no longer present (GC'd) are removed. It is idempotent
// over (session, access-set) snapshots.
func (m *MemoryStore) UpdateSession(_ context.Context, s *cas.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[s.ID()]; !ok {
		m.byID[s.ID()] = s
	}
	m.indexAccessesLocked(s)
	m.indexPrincipalLocked(s)
	return nil
}

func (m *MemoryStore) indexAccessesLocked(s *cas.Session) {
	live := map[string]struct{}{}
	for _, a := range s.Accesses() {
		live[a.GetID()] = struct{}{}
		if a.RequiresStorage() {
			m.byAccessID[a.GetID()] = s.ID()
		}
	}
	for accessID, owner := range m.byAccessID {
		if owner != s.ID() {
			continue
		}
		if _, stillLive := live[accessID]; !stillLive {
			delete(m.byAccessID, accessID)
		}
	}
}

func (m *MemoryStore) indexPrincipalLocked(s *cas.Session) {
	principalID := s.PrincipalID()
	if principalID == "" {
		return
	}
	set, ok := m.byPrincipal[principalID]
	if !ok {
		set = map[string]struct{}{}
		m.byPrincipal[principalID] = set
	}
	set[s.ID()] = struct{}{}
}

// DestroySession removes a session from every index and returns the
// detached object, still referenceable so the caller can invalidate it.
// Destroying an id the store has no record of is a no-op returning
// (nil, nil): destroying an already-destroyed session must never error.
func (m *MemoryStore) DestroySession(_ context.Context, sessionID string) (*cas.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[sessionID]
	if !ok {
		return nil, nil
	}
	delete(m.byID, sessionID)

	for accessID, owner := range m.byAccessID {
		if owner == sessionID {
			delete(m.byAccessID, accessID)
		}
	}

	principalID := s.PrincipalID()
	if set, ok := m.byPrincipal[principalID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(m.byPrincipal, principalID)
		}
	}

	return s, nil
}

func (m *MemoryStore) FindSessionBySessionID(_ context.Context, sessionID string) (*cas.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[sessionID], nil
}

func (m *MemoryStore) FindSessionByAccessID(_ context.Context, accessID string) (*cas.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessionID, ok := m.byAccessID[accessID]
	if !ok {
		return nil, nil
	}
	return m.byID[sessionID], nil
}

func (m *MemoryStore) FindSessionsByPrincipal(_ context.Context, principalID string) ([]*cas.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.byPrincipal[principalID]
	out := make([]*cas.Session, 0, len(set))
	for id := range set {
		if s, ok := m.byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) AllSessionIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byID))
	for id := range m.byID {
		out = append(out, id)
	}
	return out, nil
}
