package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jonwraymond/chatrelay/gemini"
	"github.com/jonwraymond/chatrelay/internal/chat"
	"github.com/jonwraymond/chatrelay/internal/store"
)

// handleChat accepts a JSON chat.SendRequest, or a multipart form with the
// same fields plus an optional "attachment" file.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeSendRequest(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Chat.Send(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) decodeSendRequest(w http.ResponseWriter, r *http.Request) (chat.SendRequest, error) {
	var req chat.SendRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = "application/json"
	}

	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("%w: %w", errBadRequest, err)
		}
		return req, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
			return req, fmt.Errorf("%w: %w", errBadRequest, err)
		}
		req.ConversationID = r.FormValue("conversation_id")
		req.Text = r.FormValue("message")
		req.Model = r.FormValue("model")
		if v := r.FormValue("safety_filters"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return req, fmt.Errorf("%w: safety_filters: %w", errBadRequest, err)
			}
			req.SafetyFilters = &b
		}
		if v := r.FormValue("temperature"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return req, fmt.Errorf("%w: temperature: %w", errBadRequest, err)
			}
			req.Temperature = &f
		}
		att, err := formAttachment(r)
		if err != nil {
			return req, err
		}
		req.Attachment = att
		return req, nil
	default:
		return req, fmt.Errorf("%w: %s", errUnsupportedType, mediaType)
	}
}

func formAttachment(r *http.Request) (*gemini.Attachment, error) {
	file, header, err := r.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: attachment: %w", errBadRequest, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: attachment: %w", errBadRequest, err)
	}
	return &gemini.Attachment{
		Name:     header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.deps.Chat.Conversations(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.deps.Chat.Conversation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Chat.DeleteConversation(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
