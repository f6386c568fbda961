package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jonwraymond/chatrelay/auth"
)

// SigninRequest is the body of POST /api/auth/signin.
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Credentials == nil || s.deps.Tokens == nil {
		s.writeError(w, r, errSigninDisabled)
		return
	}

	var req SigninRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	identity, err := s.deps.Credentials.Verify(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	token, err := s.deps.Tokens.Issue(identity.Principal)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		identity = auth.AnonymousIdentity()
	}
	writeJSON(w, http.StatusOK, identity)
}
