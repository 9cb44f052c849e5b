package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/roomlog/internal/gateway"
	"github.com/eldtechnologies/roomlog/internal/models"
)

const maxListLimit = 1000

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID         string `json:"id"`
	Room       string `json:"room"`
	Author     string `json:"author"`
	Text       string `json:"text"`
	Type       string `json:"type"` // "text" or "file"
	Timestamp  int64  `json:"ts"`
	FileBucket string `json:"file_bucket,omitempty"`
	FileObject string `json:"file_object,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	FileMime   string `json:"file_mime,omitempty"`
	FileSize   int64  `json:"file_size,omitempty"`
	URL        string `json:"url,omitempty"`
}

// PostMessageRequest represents the post message request. The Portuguese
// field names are accepted for older clients.
type PostMessageRequest struct {
	Author string `json:"author"`
	Autor  string `json:"autor"`
	Text   string `json:"text"`
	Texto  string `json:"texto"`
}

func newMessageResponse(m models.Message) MessageResponse {
	resp := MessageResponse{
		ID:         m.ID,
		Room:       m.Room,
		Author:     m.Author,
		Text:       m.Text,
		Type:       m.Kind(),
		Timestamp:  m.Timestamp,
		FileBucket: m.FileBucket,
		FileObject: m.FileObject,
		FileName:   m.FileName,
		FileMime:   m.FileMime,
		FileSize:   m.FileSize,
	}
	if m.FileObject != "" {
		resp.URL = "/uploads/" + m.FileObject
	}
	return resp
}

// GetMessages handles listing the messages of a room.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "id")
	if !validRoom(room) {
		h.Error(w, http.StatusBadRequest, "invalid room name")
		return
	}

	opts := gateway.ListOptions{Limit: gateway.DefaultLimit}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			opts.Limit = l
		}
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		if s, err := strconv.ParseInt(sinceStr, 10, 64); err == nil && s > 0 {
			opts.Since = s
		}
	}

	msgs, err := h.gw.List(r.Context(), room, opts)
	if err != nil {
		h.gatewayError(w, err)
		return
	}

	resp := make([]MessageResponse, len(msgs))
	for i, m := range msgs {
		resp[i] = newMessageResponse(m)
	}
	h.JSON(w, http.StatusOK, resp)
}

// PostMessage handles posting a text message to a room.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "id")
	if !validRoom(room) {
		h.Error(w, http.StatusBadRequest, "invalid room name")
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	text := req.Text
	if text == "" {
		text = req.Texto
	}
	if strings.TrimSpace(text) == "" {
		h.Error(w, http.StatusBadRequest, "text is required")
		return
	}

	msg, err := h.gw.Insert(r.Context(), room, models.Raw{
		"author": authorOrAnon(req.Author, req.Autor),
		"text":   text,
	})
	if err != nil {
		h.gatewayError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, newMessageResponse(msg))
}

// gatewayError maps gateway failures to HTTP statuses.
func (h *Handler) gatewayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrInvalidArgument):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrPersistenceFailure):
		h.Error(w, http.StatusInternalServerError, "local persistence failed")
	default:
		h.logger.Error().Err(err).Msg("unexpected gateway error")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

func authorOrAnon(candidates ...string) string {
	for _, c := range candidates {
		if c = sanitizeName(c); c != "" {
			return c
		}
	}
	return "anon"
}
