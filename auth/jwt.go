package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures the JWT authenticator.
type JWTConfig struct {
	// Issuer is the expected token issuer (iss claim). Empty skips the check.
	Issuer string

	// Audience is the expected token audience (aud claim). Empty skips the check.
	Audience string

	// HeaderName is the header containing the token.
	// Default: "Authorization"
	HeaderName string

	// TokenPrefix is the prefix before the token in the header.
	// Default: "Bearer "
	TokenPrefix string

	// Leeway is the clock skew tolerated on exp/iat.
	// Default: 0
	Leeway time.Duration

	// Now overrides the validation clock (tests).
	Now func() time.Time
}

// KeyProvider retrieves signing keys for JWT validation.
type KeyProvider interface {
	// GetKey returns the key for the given key ID.
	GetKey(ctx context.Context, keyID string) (any, error)
}

// StaticKeyProvider provides a static HMAC signing key.
type StaticKeyProvider struct {
	key []byte
}

// NewStaticKeyProvider creates a static key provider.
func NewStaticKeyProvider(key []byte) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

// GetKey returns the static key, or ErrKeyNotFound when it is empty.
func (p *StaticKeyProvider) GetKey(_ context.Context, _ string) (any, error) {
	if len(p.key) == 0 {
		return nil, ErrKeyNotFound
	}
	return p.key, nil
}

// JWTAuthenticator validates HS256 session tokens.
type JWTAuthenticator struct {
	config      JWTConfig
	keyProvider KeyProvider
	parser      *jwt.Parser
}

// NewJWTAuthenticator creates a new JWT authenticator.
func NewJWTAuthenticator(config JWTConfig, keyProvider KeyProvider) *JWTAuthenticator {
	if config.HeaderName == "" {
		config.HeaderName = "Authorization"
	}
	if config.TokenPrefix == "" {
		config.TokenPrefix = "Bearer "
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	if config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(config.Leeway))
	}
	if config.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(config.Now))
	}

	return &JWTAuthenticator{
		config:      config,
		keyProvider: keyProvider,
		parser:      jwt.NewParser(opts...),
	}
}

// Name returns "jwt".
func (a *JWTAuthenticator) Name() string {
	return "jwt"
}

// Supports returns true if the request carries a bearer token.
func (a *JWTAuthenticator) Supports(_ context.Context, req *AuthRequest) bool {
	header := req.GetHeader(a.config.HeaderName)
	return strings.HasPrefix(header, a.config.TokenPrefix)
}

// Authenticate validates the session token.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error) {
	header := req.GetHeader(a.config.HeaderName)
	if header == "" {
		return AuthFailure(ErrMissingCredentials, "jwt"), nil
	}

	tokenString, ok := strings.CutPrefix(header, a.config.TokenPrefix)
	tokenString = strings.TrimSpace(tokenString)
	if !ok || tokenString == "" {
		return AuthFailure(ErrMissingCredentials, "jwt"), nil
	}

	claims := jwt.MapClaims{}
	_, err := a.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return a.keyProvider.GetKey(ctx, kid)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrKeyNotFound):
		return nil, fmt.Errorf("auth: resolve signing key: %w", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return AuthFailure(ErrTokenExpired, "jwt"), nil
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenUnverifiable):
		return AuthFailure(ErrTokenMalformed, "jwt"), nil
	default:
		return AuthFailure(ErrInvalidCredentials, "jwt"), nil
	}

	identity, err := identityFromClaims(claims)
	if err != nil {
		return AuthFailure(err, "jwt"), nil
	}
	return AuthSuccess(identity), nil
}

func identityFromClaims(claims jwt.MapClaims) (*Identity, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrInvalidCredentials
	}

	identity := &Identity{
		Principal: sub,
		Method:    AuthMethodJWT,
		Claims:    make(map[string]any, len(claims)),
	}
	for k, v := range claims {
		identity.Claims[k] = v
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		identity.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		identity.IssuedAt = iat.Time
	}
	return identity, nil
}

var (
	_ Authenticator = (*JWTAuthenticator)(nil)
	_ KeyProvider   = (*StaticKeyProvider)(nil)
)
