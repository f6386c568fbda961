package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func fixedNow() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func bearer(token string) *AuthRequest {
	return &AuthRequest{Headers: map[string][]string{"Authorization": {"Bearer " + token}}}
}

func validClaims() jwt.RegisteredClaims {
	now := fixedNow()
	return jwt.RegisteredClaims{
		Subject:   "ada@example.com",
		Issuer:    "chatrelay",
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func newTestJWTAuthenticator() *JWTAuthenticator {
	return NewJWTAuthenticator(JWTConfig{Issuer: "chatrelay", Now: fixedNow}, NewStaticKeyProvider(testSecret))
}

func TestNewJWTAuthenticator(t *testing.T) {
	a := NewJWTAuthenticator(JWTConfig{}, NewStaticKeyProvider(testSecret))

	if a.Name() != "jwt" {
		t.Errorf("Name() = %v, want jwt", a.Name())
	}
	if a.config.HeaderName != "Authorization" {
		t.Errorf("HeaderName = %q, want Authorization", a.config.HeaderName)
	}
	if a.config.TokenPrefix != "Bearer " {
		t.Errorf("TokenPrefix = %q, want %q", a.config.TokenPrefix, "Bearer ")
	}
}

func TestJWTAuthenticator_Supports(t *testing.T) {
	a := newTestJWTAuthenticator()

	tests := []struct {
		name    string
		headers map[string][]string
		want    bool
	}{
		{"no authorization header", map[string][]string{}, false},
		{"bearer token", map[string][]string{"Authorization": {"Bearer token123"}}, true},
		{"other header", map[string][]string{"X-Custom": {"token123"}}, false},
		{"wrong prefix", map[string][]string{"Authorization": {"Basic abc123"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &AuthRequest{Headers: tt.headers}
			if got := a.Supports(context.Background(), req); got != tt.want {
				t.Errorf("Supports() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJWTAuthenticator_Authenticate_Valid(t *testing.T) {
	a := newTestJWTAuthenticator()
	token := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims())

	result, err := a.Authenticate(context.Background(), bearer(token))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !result.Authenticated {
		t.Fatalf("Authenticated = false, error = %v", result.Error)
	}
	id := result.Identity
	if id.Principal != "ada@example.com" {
		t.Errorf("Principal = %q, want ada@example.com", id.Principal)
	}
	if id.Method != AuthMethodJWT {
		t.Errorf("Method = %v, want %v", id.Method, AuthMethodJWT)
	}
	if !id.ExpiresAt.Equal(fixedNow().Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", id.ExpiresAt, fixedNow().Add(time.Hour))
	}
	if id.Claims["iss"] != "chatrelay" {
		t.Errorf("Claims[iss] = %v, want chatrelay", id.Claims["iss"])
	}
}

func TestJWTAuthenticator_Authenticate_Failures(t *testing.T) {
	a := newTestJWTAuthenticator()

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(fixedNow().Add(-time.Second))

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	noSubject := validClaims()
	noSubject.Subject = ""

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name    string
		req     *AuthRequest
		wantErr error
	}{
		{"missing header", &AuthRequest{}, ErrMissingCredentials},
		{"empty bearer", bearer(""), ErrMissingCredentials},
		{"garbage", bearer("not-a-jwt"), ErrTokenMalformed},
		{"expired", bearer(signToken(t, jwt.SigningMethodHS256, testSecret, expired)), ErrTokenExpired},
		{"wrong secret", bearer(signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims())), ErrInvalidCredentials},
		{"wrong issuer", bearer(signToken(t, jwt.SigningMethodHS256, testSecret, wrongIssuer)), ErrInvalidCredentials},
		{"wrong algorithm", bearer(signToken(t, jwt.SigningMethodHS512, testSecret, validClaims())), ErrInvalidCredentials},
		{"no subject", bearer(signToken(t, jwt.SigningMethodHS256, testSecret, noSubject)), ErrInvalidCredentials},
		{"no expiry", bearer(signToken(t, jwt.SigningMethodHS256, testSecret, noExpiry)), ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := a.Authenticate(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if result.Authenticated {
				t.Fatal("Authenticated = true, want false")
			}
			if !errors.Is(result.Error, tt.wantErr) {
				t.Errorf("Error = %v, want %v", result.Error, tt.wantErr)
			}
		})
	}
}

func TestJWTAuthenticator_Authenticate_MissingKey(t *testing.T) {
	a := NewJWTAuthenticator(JWTConfig{Now: fixedNow}, NewStaticKeyProvider(nil))
	token := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims())

	result, err := a.Authenticate(context.Background(), bearer(token))
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Authenticate() error = %v, want %v", err, ErrKeyNotFound)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
}

func TestJWTAuthenticator_Audience(t *testing.T) {
	a := NewJWTAuthenticator(JWTConfig{Audience: "chatrelay-web", Now: fixedNow}, NewStaticKeyProvider(testSecret))

	withAud := validClaims()
	withAud.Audience = jwt.ClaimStrings{"chatrelay-web"}

	result, err := a.Authenticate(context.Background(), bearer(signToken(t, jwt.SigningMethodHS256, testSecret, withAud)))
	if err != nil || !result.Authenticated {
		t.Errorf("matching audience: result = %+v, err = %v", result, err)
	}

	result, err = a.Authenticate(context.Background(), bearer(signToken(t, jwt.SigningMethodHS256, testSecret, validClaims())))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if result.Authenticated {
		t.Error("missing audience accepted")
	}
}
