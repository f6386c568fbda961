// Package auth implements the sign-in gate for chatrelay.
//
// A user signs in with an email and password checked against bcrypt hashes
// (Credentials). A TokenIssuer then mints a short-lived HS256 session token,
// and the JWTAuthenticator validates that token on later requests.
//
// The package is transport-agnostic: AuthRequest carries headers as a plain
// map, and HTTP wiring lives in internal/server.
package auth
