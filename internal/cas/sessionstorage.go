package cas

import "context"

// SessionStorage is the durable indexed session store the orchestrator
// reads and writes through. Operations on a single session id are
// linearizable; operations on different sessions may run in parallel.
// Concrete implementations live in internal/cas/store — this interface
// stays in package cas so the orchestrator never needs to import them.
type SessionStorage interface {
	CreateSession(ctx context.Context, s *Session) error
	UpdateSession(ctx context.Context, s *Session) error
	DestroySession(ctx context.Context, sessionID string) (*Session, error)
	FindSessionBySessionID(ctx context.Context, sessionID string) (*Session, error)
	FindSessionByAccessID(ctx context.Context, accessID string) (*Session, error)
	FindSessionsByPrincipal(ctx context.Context, principalID string) ([]*Session, error)
	// AllSessionIDs supports the expiration sweeper's scan; every
	// SessionStorage needs some way to enumerate candidates for expiry.
	AllSessionIDs(ctx context.Context) ([]string, error)
}
