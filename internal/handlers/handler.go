package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomlog/internal/gateway"
	"github.com/eldtechnologies/roomlog/internal/store"
)

// roomNameRegex accepts letters, digits, dot, hyphen and underscore, 1-64 chars.
var roomNameRegex = regexp.MustCompile(`^[\p{L}\p{N}_.\-]{1,64}$`)

// Deps holds the collaborators of the HTTP handlers. Manager and Rooms may
// be nil when the distributed store or the room index are disabled.
type Deps struct {
	Gateway        *gateway.Gateway
	Files          *store.FileStore
	Manager        *store.Manager
	Rooms          store.RoomIndex
	UploadDir      string
	MaxUploadBytes int64
	Logger         zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	gw        *gateway.Gateway
	files     *store.FileStore
	manager   *store.Manager
	rooms     store.RoomIndex
	uploadDir string
	maxUpload int64
	logger    zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		gw:        d.Gateway,
		files:     d.Files,
		manager:   d.Manager,
		rooms:     d.Rooms,
		uploadDir: d.UploadDir,
		maxUpload: d.MaxUploadBytes,
		logger:    d.Logger.With().Str("component", "handlers").Logger(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}

	return name
}

// validRoom reports whether name can be used as a room key.
func validRoom(name string) bool {
	return roomNameRegex.MatchString(name)
}
