package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var ErrUserNotFound = errors.New("auth: user not found")

// User is a login identity. PasswordHash is a bcrypt hash.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
}

// Users looks up login identities by email.
type Users interface {
	ByEmail(ctx context.Context, email string) (User, error)
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryUsers is an in-memory Users for development and tests.
type MemoryUsers struct {
	cost int

	mu      sync.RWMutex
	byEmail map[string]User
}

// NewMemoryUsers hashes passwords with the given bcrypt cost; 0 means bcrypt.DefaultCost.
func NewMemoryUsers(cost int) *MemoryUsers {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &MemoryUsers{cost: cost, byEmail: make(map[string]User)}
}

// Add registers a user with a plaintext password.
func (m *MemoryUsers) Add(id, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	email = NormalizeEmail(email)
	m.mu.Lock()
	m.byEmail[email] = User{ID: id, Email: email, PasswordHash: hash}
	m.mu.Unlock()
	return nil
}

func (m *MemoryUsers) ByEmail(ctx context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// PostgresUsers reads the users table (id, email, password).
type PostgresUsers struct {
	db *sql.DB
}

func NewPostgresUsers(db *sql.DB) *PostgresUsers {
	return &PostgresUsers{db: db}
}

func (p *PostgresUsers) ByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := p.db.QueryRowContext(ctx,
		`SELECT id::text, email, password FROM users WHERE lower(email) = $1`,
		NormalizeEmail(email),
	).Scan(&u.ID, &u.Email, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// checkPassword compares password against u's hash. When u was not found a
// dummy hash is compared so both paths cost one bcrypt round.
func checkPassword(u *User, password string) bool {
	if u == nil {
		dummyOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), bcrypt.DefaultCost)
		})
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) == nil
}
