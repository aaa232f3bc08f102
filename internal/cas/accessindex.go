package cas

import (
	"context"
	"time"
)

// AccessIndex is a secondary access-id -> session-id index plus a
// one-shot use claim, for authority deployments running more than one
// process where SessionStorage alone (typically an in-process
// MemoryStore) can't arbitrate a bounded-use ticket between replicas.
// A nil AccessIndex means the single-process case: Access's own
// in-memory counter is authoritative. Concrete implementations live in
// internal/cas/store — this interface stays in package cas so the
// orchestrator never needs to import them.
type AccessIndex interface {
	IndexAccess(ctx context.Context, accessID, sessionID string, ttl time.Duration) error
	ResolveAccess(ctx context.Context, accessID string) (sessionID string, found bool, err error)
	RemoveAccess(ctx context.Context, accessID string) error
	ClaimUse(ctx context.Context, accessID string, ttl time.Duration) (claimed bool, err error)
}
