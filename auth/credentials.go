package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// User is a configured account.
type User struct {
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"`
}

// Credentials verifies email and password pairs against bcrypt hashes.
// It is immutable after construction and safe for concurrent use.
type Credentials struct {
	users map[string][]byte
}

// Unknown emails are compared against this hash so that both paths cost a
// bcrypt comparison.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("chatrelay"), bcrypt.DefaultCost)
	return h
})

// NewCredentials builds a Credentials set. Each hash must be a valid bcrypt
// hash; emails are matched case-insensitively.
func NewCredentials(users []User) (*Credentials, error) {
	c := &Credentials{users: make(map[string][]byte, len(users))}
	for _, u := range users {
		email := normalizeEmail(u.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: empty email", ErrMissingCredentials)
		}
		hash := []byte(u.PasswordHash)
		if _, err := bcrypt.Cost(hash); err != nil {
			return nil, fmt.Errorf("%w for %s: %v", ErrInvalidPasswordHash, email, err)
		}
		c.users[email] = hash
	}
	return c, nil
}

// Verify checks password for email and returns the signed-in identity.
func (c *Credentials) Verify(ctx context.Context, email, password string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	hash, ok := c.users[email]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &Identity{Principal: email, Method: AuthMethodPassword}, nil
}

// Len returns the number of configured users.
func (c *Credentials) Len() int { return len(c.users) }

// HashPassword returns a bcrypt hash of password at the default cost.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(h), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
