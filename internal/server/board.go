package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/jonwraymond/chatrelay/broadcast"
	"github.com/jonwraymond/chatrelay/internal/store"
	"github.com/jonwraymond/chatrelay/observe"
)

var safeExt = regexp.MustCompile(`^\.[A-Za-z0-9]{1,10}$`)

func newUploadName() string { return uuid.NewString() }

// handleMessages serves the message board. Reads are public; posts go
// through the auth gate.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listBoard(w, r)
	case http.MethodPost:
		s.requireAuth(http.HandlerFunc(s.postBoard)).ServeHTTP(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
			Error:  fmt.Sprintf("method %s not allowed", r.Method),
			Reason: "METHOD_NOT_ALLOWED",
		})
	}
}

func (s *Server) listBoard(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.Board.ListBoardMessages(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []store.BoardMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) postBoard(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	msg := store.BoardMessage{Text: strings.TrimSpace(r.FormValue("message"))}

	name, err := s.saveUpload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg.Attachment = name

	if msg.Text == "" && msg.Attachment == "" {
		s.writeError(w, r, fmt.Errorf("%w: message or attachment required", errBadRequest))
		return
	}

	created, err := s.deps.Board.CreateBoardMessage(r.Context(), msg)
	if err != nil {
		s.removeUpload(name)
		s.writeError(w, r, err)
		return
	}

	s.publish(r, broadcast.EventBoardMessage, created)
	writeJSON(w, http.StatusCreated, created)
}

// saveUpload stores the optional "attachment" file under a generated name
// that keeps the original extension. It returns "" when there is no file.
func (s *Server) saveUpload(r *http.Request) (string, error) {
	file, header, err := r.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: attachment: %w", errBadRequest, err)
	}
	defer file.Close()

	if err := os.MkdirAll(s.config.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("server: create upload dir: %w", err)
	}

	name := s.newName()
	if ext := filepath.Ext(header.Filename); safeExt.MatchString(ext) {
		name += strings.ToLower(ext)
	}

	dst, err := os.OpenFile(filepath.Join(s.config.UploadDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("server: create upload: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		s.removeUpload(name)
		return "", fmt.Errorf("server: write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		s.removeUpload(name)
		return "", fmt.Errorf("server: write upload: %w", err)
	}
	return name, nil
}

func (s *Server) removeUpload(name string) {
	if name == "" {
		return
	}
	_ = os.Remove(filepath.Join(s.config.UploadDir, name))
}

func (s *Server) publish(r *http.Request, typ string, payload any) {
	ev, err := broadcast.NewEvent(typ, payload)
	if err == nil {
		err = s.deps.Hub.Publish(r.Context(), ev)
	}
	if err != nil {
		s.logger.Warn(r.Context(), "broadcast failed",
			observe.Field{Key: "event.type", Value: typ},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
}
