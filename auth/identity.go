package auth

import "time"

// AuthMethod indicates how authentication was performed.
type AuthMethod string

const (
	AuthMethodJWT       AuthMethod = "jwt"
	AuthMethodPassword  AuthMethod = "password"
	AuthMethodAnonymous AuthMethod = "anonymous"
)

// Identity is an authenticated user.
type Identity struct {
	// Principal is the user's email address.
	Principal string `json:"principal"`

	// Method indicates how authentication was performed.
	Method AuthMethod `json:"method"`

	// Claims contains the raw claims from the session token.
	Claims map[string]any `json:"-"`

	// ExpiresAt is when the session ends. Zero means no expiry.
	ExpiresAt time.Time `json:"expires_at,omitzero"`

	// IssuedAt is when the session was created.
	IssuedAt time.Time `json:"issued_at,omitzero"`
}

// IsExpired reports whether the identity has expired at now.
func (id *Identity) IsExpired(now time.Time) bool {
	if id.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(id.ExpiresAt)
}

// IsAnonymous returns true if this is an anonymous identity.
func (id *Identity) IsAnonymous() bool {
	return id.Method == AuthMethodAnonymous || id.Principal == ""
}

// AnonymousIdentity is attached to requests when the sign-in gate is off.
func AnonymousIdentity() *Identity {
	return &Identity{
		Principal: "anonymous",
		Method:    AuthMethodAnonymous,
	}
}
