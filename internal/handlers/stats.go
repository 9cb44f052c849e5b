package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/eldtechnologies/roomlog/internal/gateway"
	"github.com/eldtechnologies/roomlog/internal/metrics"
	"github.com/eldtechnologies/roomlog/internal/models"
)

// DefaultRoom is the room previewed by the stats endpoint.
const DefaultRoom = "geral"

// RoomStats represents stats for a single room.
type RoomStats struct {
	Name         string `json:"name"`
	MessageCount int64  `json:"message_count"`
}

// MessagePreview represents a preview of a message.
type MessagePreview struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalRooms     int64            `json:"total_rooms"`
	TotalMessages  int64            `json:"total_messages"`
	LastActivity   string           `json:"last_activity"`
	TopRooms       []RoomStats      `json:"top_rooms"`
	PreviewRoom    string           `json:"preview_room"`
	RecentMessages []MessagePreview `json:"recent_messages"`
}

// Stats returns activity totals from the room index and a preview of the
// latest messages of one room (?room=, default "geral").
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StatsResponse{
		LastActivity:   "no activity yet",
		TopRooms:       []RoomStats{},
		PreviewRoom:    DefaultRoom,
		RecentMessages: []MessagePreview{},
	}
	if room := r.URL.Query().Get("room"); room != "" {
		if !validRoom(room) {
			h.Error(w, http.StatusBadRequest, "invalid room name")
			return
		}
		resp.PreviewRoom = room
	}

	if h.rooms != nil {
		start := time.Now()

		totalRooms, err := h.rooms.CountRooms(ctx)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to count rooms")
			return
		}
		resp.TotalRooms = totalRooms

		totalMessages, err := h.rooms.SumMessageCount(ctx)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to sum messages")
			return
		}
		resp.TotalMessages = totalMessages

		// Get most recent activity
		lastActivityTime, err := h.rooms.GetMostRecentActivity(ctx)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to get last activity")
			return
		}
		if lastActivityTime != nil {
			resp.LastActivity = formatTimeAgo(*lastActivityTime, time.Now())
		}

		topRooms, err := h.rooms.GetTopActiveRooms(ctx, 5)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to get top rooms")
			return
		}
		for _, room := range topRooms {
			resp.TopRooms = append(resp.TopRooms, RoomStats{
				Name:         room.Name,
				MessageCount: room.MessageCount,
			})
		}

		metrics.RoomIndexLatency.Observe(time.Since(start).Seconds())
	}

	messages, err := h.gw.List(ctx, resp.PreviewRoom, gateway.ListOptions{Limit: 5})
	if err != nil {
		// Non-fatal, continue with empty messages
		h.logger.Warn().Err(err).Str("room", resp.PreviewRoom).Msg("stats preview unavailable")
		messages = nil
	}

	for _, msg := range messages {
		body := msg.Text
		if msg.Kind() == models.KindFile {
			body = msg.FileName
		}
		// Truncate body if too long
		if runes := []rune(body); len(runes) > 200 {
			body = string(runes[:197]) + "..."
		}

		resp.RecentMessages = append(resp.RecentMessages, MessagePreview{
			ID:        msg.ID,
			Author:    msg.Author,
			Body:      body,
			Type:      msg.Kind(),
			Timestamp: msg.Timestamp,
		})
	}

	h.JSON(w, http.StatusOK, resp)
}

// formatTimeAgo formats t relative to now as a human-readable "X ago" string.
func formatTimeAgo(t, now time.Time) string {
	diff := now.Sub(t)

	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return strconv.Itoa(n) + " " + unit + "s ago"
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	default:
		return plural(int(diff.Hours()/24), "day")
	}
}
