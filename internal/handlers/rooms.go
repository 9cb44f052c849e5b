package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/eldtechnologies/roomlog/internal/metrics"
)

// RoomInfo represents a room in the list response.
type RoomInfo struct {
	Name         string `json:"name"`
	MessageCount int64  `json:"message_count"`
	CreatedAt    string `json:"created_at"`
	LastActive   string `json:"last_active"`
}

// RoomListResponse represents the rooms list response.
type RoomListResponse struct {
	Rooms []RoomInfo `json:"rooms"`
	Total int        `json:"total"`
}

// ListRooms handles listing rooms known to the room index, most recently
// active first.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	if h.rooms == nil {
		h.Error(w, http.StatusServiceUnavailable, "room index disabled")
		return
	}

	// Parse query params
	limitStr := r.URL.Query().Get("limit")
	offsetStr := r.URL.Query().Get("offset")

	limit := 20
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	start := time.Now()
	rooms, total, err := h.rooms.ListRooms(r.Context(), limit, offset)
	metrics.RoomIndexLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		h.logger.Error().Err(err).Msg("list rooms failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	// Build response
	infos := make([]RoomInfo, len(rooms))
	for i, room := range rooms {
		infos[i] = RoomInfo{
			Name:         room.Name,
			MessageCount: room.MessageCount,
			CreatedAt:    room.CreatedAt.UTC().Format(time.RFC3339),
			LastActive:   room.LastActiveAt.UTC().Format(time.RFC3339),
		}
	}

	h.JSON(w, http.StatusOK, RoomListResponse{
		Rooms: infos,
		Total: total,
	})
}
