package store

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

const (
	accessIndexKeyPrefix = "cas:access_index:"
	accessClaimKeyPrefix = "cas:access_claim:"
	claimedValue         = "claimed"
)

// RedisIndex is a secondary access-id -> session-id index plus a one-shot
// use claim, for authority deployments running more than one process.
// Built on the same go-zero stores/redis.Redis client and
// SetexCtx/GetCtx/DelCtx calls as domain/cache/cache.go, repurposed from
// "is this JWT still valid" bookkeeping to CAS ticket indexing and
// bounded-use enforcement.
type RedisIndex struct {
	client *redis.Redis
}

func NewRedisIndex(client *redis.Redis) *RedisIndex {
	return &RedisIndex{client: client}
}

// IndexAccess records that accessID belongs to sessionID, expiring the
// entry after ttl so the index never outlives a ticket that was never
// explicitly removed.
func (r *RedisIndex) IndexAccess(ctx context.Context, accessID, sessionID string, ttl time.Duration) error {
	key := accessIndexKeyPrefix + accessID
	return r.client.SetexCtx(ctx, key, sessionID, int(ttl.Seconds()))
}

// ResolveAccess looks up the session id an access token belongs to.
func (r *RedisIndex) ResolveAccess(ctx context.Context, accessID string) (string, bool, error) {
	key := accessIndexKeyPrefix + accessID
	val, err := r.client.GetCtx(ctx, key)
	if err != nil {
		logx.WithContext(ctx).Errorf("store: redis resolve access %s: %v", accessID, err)
		return "", false, err
	}
	return val, val != "", nil
}

// RemoveAccess drops the index entry, e.g. when the access's owning
// session is destroyed.
func (r *RedisIndex) RemoveAccess(ctx context.Context, accessID string) error {
	key := accessIndexKeyPrefix + accessID
	_, err := r.client.DelCtx(ctx, key)
	return err
}

// ClaimUse enforces a bounded-use policy across multiple authority
// processes: the first caller to claim an access id within ttl gets
// claimed=true; every subsequent caller (even on another process) gets
// claimed=false, mirroring domain/cache.Cache's
// AddTokenToSwappableTokens/IsSwappableToken TTL-keyed guard.
func (r *RedisIndex) ClaimUse(ctx context.Context, accessID string, ttl time.Duration) (claimed bool, err error) {
	key := accessClaimKeyPrefix + accessID
	return r.client.SetnxExCtx(ctx, key, claimedValue, int(ttl.Seconds()))
}
