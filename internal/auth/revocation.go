package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations is the logout denylist, keyed by token id (jti). Entries only
// need to outlive the token they revoke.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	Revoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevocations keeps the denylist in process.
type MemoryRevocations struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{now: time.Now, entries: make(map[string]time.Time)}
}

func (m *MemoryRevocations) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	m.entries[tokenID] = until
	m.mu.Unlock()
	return nil
}

func (m *MemoryRevocations) Revoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(until) {
		delete(m.entries, tokenID)
		return false, nil
	}
	return true, nil
}

// Prune drops entries whose tokens have expired anyway and returns how many
// remain.
func (m *MemoryRevocations) Prune() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, until := range m.entries {
		if !now.Before(until) {
			delete(m.entries, id)
		}
	}
	return len(m.entries)
}

// RedisRevocations stores "revoked_tokens:{jti}" with a TTL matching the
// token's remaining lifetime, so Redis drops the entry on its own.
type RedisRevocations struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisRevocations(client redis.Cmdable) *RedisRevocations {
	return &RedisRevocations{client: client, now: time.Now}
}

func revokedKey(tokenID string) string { return "revoked_tokens:" + tokenID }

func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set revocation: %w", err)
	}
	return nil
}

func (r *RedisRevocations) Revoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists revocation: %w", err)
	}
	return n > 0, nil
}
