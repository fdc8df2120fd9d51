package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Login throttle defaults: five failures per email, window refreshed on
// every failure.
const (
	DefaultMaxAttempts = 5
	DefaultDecay       = time.Minute
)

// Attempts tracks failed logins per email.
type Attempts interface {
	Failures(ctx context.Context, email string) (int, error)
	RecordFailure(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

type attempt struct {
	count   int
	expires time.Time
}

// MemoryAttempts keeps failure counters in process.
type MemoryAttempts struct {
	decay time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]attempt
}

func NewMemoryAttempts(decay time.Duration) *MemoryAttempts {
	return &MemoryAttempts{decay: decay, now: time.Now, entries: make(map[string]attempt)}
}

func (m *MemoryAttempts) Failures(ctx context.Context, email string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.entries[email]
	if !ok {
		return 0, nil
	}
	if !m.now().Before(a.expires) {
		delete(m.entries, email)
		return 0, nil
	}
	return a.count, nil
}

func (m *MemoryAttempts) RecordFailure(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	a := m.entries[email]
	if !now.Before(a.expires) {
		a.count = 0
	}
	a.count++
	a.expires = now.Add(m.decay)
	m.entries[email] = a
	return nil
}

func (m *MemoryAttempts) Reset(ctx context.Context, email string) error {
	m.mu.Lock()
	delete(m.entries, email)
	m.mu.Unlock()
	return nil
}

// RedisAttempts keeps counters under "login_attempts:{email}" so every
// replica shares them.
type RedisAttempts struct {
	client redis.Cmdable
	decay  time.Duration
}

func NewRedisAttempts(client redis.Cmdable, decay time.Duration) *RedisAttempts {
	return &RedisAttempts{client: client, decay: decay}
}

func attemptsKey(email string) string { return "login_attempts:" + email }

func (r *RedisAttempts) Failures(ctx context.Context, email string) (int, error) {
	n, err := r.client.Get(ctx, attemptsKey(email)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get attempts: %w", err)
	}
	return n, nil
}

func (r *RedisAttempts) RecordFailure(ctx context.Context, email string) error {
	key := attemptsKey(email)
	if err := r.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis incr attempts: %w", err)
	}
	if err := r.client.Expire(ctx, key, r.decay).Err(); err != nil {
		return fmt.Errorf("redis expire attempts: %w", err)
	}
	return nil
}

func (r *RedisAttempts) Reset(ctx context.Context, email string) error {
	if err := r.client.Del(ctx, attemptsKey(email)).Err(); err != nil {
		return fmt.Errorf("redis del attempts: %w", err)
	}
	return nil
}
