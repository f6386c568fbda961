package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultSessionTTL is the session lifetime used when TokenConfig.TTL is unset.
const DefaultSessionTTL = 24 * time.Hour

// TokenConfig configures session token minting.
type TokenConfig struct {
	// Secret is the HS256 signing key. Required.
	Secret []byte

	// Issuer is written to the iss claim.
	Issuer string

	// Audience is written to the aud claim when set.
	Audience string

	// TTL is the session lifetime.
	// Default: 24h
	TTL time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Token is a minted session.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenIssuer mints HS256 session tokens.
type TokenIssuer struct {
	config TokenConfig
}

// NewTokenIssuer creates a TokenIssuer. It fails with ErrMissingSecret when
// no signing key is configured.
func NewTokenIssuer(config TokenConfig) (*TokenIssuer, error) {
	if len(config.Secret) == 0 {
		return nil, ErrMissingSecret
	}
	if config.TTL <= 0 {
		config.TTL = DefaultSessionTTL
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &TokenIssuer{config: config}, nil
}

// Issue mints a session token for principal.
func (i *TokenIssuer) Issue(principal string) (Token, error) {
	if principal == "" {
		return Token{}, ErrMissingCredentials
	}

	// NumericDate has second precision.
	now := i.config.Now().Truncate(time.Second)
	expiresAt := now.Add(i.config.TTL)

	claims := jwt.RegisteredClaims{
		Subject:   principal,
		Issuer:    i.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}
	if i.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.config.Secret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expiresAt}, nil
}

// KeyProvider returns a provider for the issuer's signing key, for use with
// NewJWTAuthenticator.
func (i *TokenIssuer) KeyProvider() KeyProvider {
	return NewStaticKeyProvider(i.config.Secret)
}

// TTL returns the configured session lifetime.
func (i *TokenIssuer) TTL() time.Duration { return i.config.TTL }
