package cas

import (
	"sync"
	"time"
)

// Session is a principal's authenticated context — a ticket-granting
// ticket, or a proxy-granting ticket when ParentAccessID is set. One
// mutex serializes Grant/Invalidate/AddAuthentication: mutation of a
// single Session object is always serialized per session.
type Session struct {
	mu sync.Mutex

	id              string
	parentAccessID  *string
	authentications []Authentication
	accesses        map[string]*Access
	childSessionIDs map[string]struct{}
	created         time.Time
	lastUsed        time.Time
	longTerm        bool
	invalidated     bool
}

func newSession(id string, parentAccessID *string, authentications []Authentication, longTerm bool) *Session {
	now := time.Now().UTC()
	return &Session{
		id:              id,
		parentAccessID:  parentAccessID,
		authentications: append([]Authentication{}, authentications...),
		accesses:        map[string]*Access{},
		childSessionIDs: map[string]struct{}{},
		created:         now,
		lastUsed:        now,
		longTerm:        longTerm,
	}
}

// NewSession constructs a top-level Session (no parent Access) from a
// successful AuthenticationResponse. Used by the orchestrator's login and
// grantAccess(forceAuthentication) paths.
func NewSession(id string, authResp AuthenticationResponse, longTerm bool) *Session {
	return newSession(id, nil, authResp.Authentications, longTerm)
}

func (s *Session) ID() string { return s.id }

// ParentAccessID is non-nil for delegated (proxy-granting) sessions.
func (s *Session) ParentAccessID() *string { return s.parentAccessID }

func (s *Session) PrincipalID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.authentications) == 0 {
		return ""
	}
	return s.authentications[0].Principal.ID
}

func (s *Session) LongTerm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.longTerm
}

func (s *Session) Created() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) touch() {
	s.lastUsed = time.Now().UTC()
}

// Grant creates a fresh Access for the target service. The default
// policy mints a new Access every call — tokens are one-shot
// unique unless a ResponseFactory declares the grant idempotent, which
// this core leaves to callers composing their own factory.
func (s *Session) Grant(req ServiceAccessRequest, gen IDGenerator, policy UsagePolicy, requiresStorage bool, notifier RelyingPartyNotifier) (*Access, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.invalidated {
		return nil, ErrInvalidatedSession
	}

	prefix := "ST-"
	if req.ProxiedRequest {
		prefix = "PT-"
	}
	id, err := gen.NewID(prefix)
	if err != nil {
		return nil, err
	}

	access := NewAccess(id, req.ServiceID, s.id, policy, requiresStorage, notifier)
	s.accesses[id] = access
	s.touch()
	return access, nil
}

// GetAccess is an O(1) lookup within the session's own access set.
func (s *Session) GetAccess(accessID string) *Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accesses[accessID]
}

// Accesses returns a snapshot of the session's current access set.
func (s *Session) Accesses() []*Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Access, 0, len(s.accesses))
	for _, a := range s.accesses {
		out = append(out, a)
	}
	return out
}

// Authentications returns a snapshot of the session's accumulated
// Authentication records, used to build the synthetic AuthenticationResponse
// a delegated session is minted from.
func (s *Session) Authentications() []Authentication {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Authentication, len(s.authentications))
	copy(out, s.authentications)
	return out
}

// AddAuthentication appends an Authentication during a force-reauth where
// the principal matches the session's existing principal.
func (s *Session) AddAuthentication(a Authentication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalidated {
		return ErrInvalidatedSession
	}
	s.authentications = append(s.authentications, a)
	s.touch()
	return nil
}

// AddChild registers a delegated session id so cascading invalidation can
// find it. Accesses and child sessions are looked up through the store by
// id rather than held as raw pointers, to avoid ownership cycles between
// Session, Access and delegated Session.
func (s *Session) AddChild(childSessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.childSessionIDs[childSessionID] = struct{}{}
}

// ChildSessionIDs returns a snapshot of this session's child session ids.
func (s *Session) ChildSessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.childSessionIDs))
	for id := range s.childSessionIDs {
		out = append(out, id)
	}
	return out
}

// Invalidate sets invalidated=true and invalidates every Access owned by
// this session. It does not recurse into child sessions itself — cascading
// to children that live in the store is the orchestrator/store's job,
// since this Session has no owning reference to them, only their ids.
// Calling Invalidate twice is a no-op the second time.
func (s *Session) Invalidate(notify func(*Access)) {
	s.mu.Lock()
	if s.invalidated {
		s.mu.Unlock()
		return
	}
	s.invalidated = true
	accesses := make([]*Access, 0, len(s.accesses))
	for _, a := range s.accesses {
		accesses = append(accesses, a)
	}
	s.mu.Unlock()

	for _, a := range accesses {
		if notify != nil {
			notify(a)
		}
	}
}

func (s *Session) Invalidated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidated
}

// IsValid reports whether the session is neither invalidated nor expired.
func (s *Session) IsValid(policy ExpirationPolicy) bool {
	s.mu.Lock()
	invalidated := s.invalidated
	s.mu.Unlock()
	if invalidated {
		return false
	}
	return !policy.IsExpired(s)
}
