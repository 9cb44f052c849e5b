// Package gateway orchestrates message inserts and listings across the
// distributed store and the local fallback file.
//
// The distributed store is strictly best effort: its failures are logged
// and absorbed. Durability is anchored to the file store, whose failures
// are the only ones a caller ever sees besides invalid input.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomlog/internal/metrics"
	"github.com/eldtechnologies/roomlog/internal/models"
	"github.com/eldtechnologies/roomlog/internal/normalize"
	"github.com/eldtechnologies/roomlog/internal/store"
)

// DefaultLimit is used when a listing asks for no positive limit.
const DefaultLimit = 100

var (
	// ErrInvalidArgument is returned for a missing room.
	ErrInvalidArgument = errors.New("gateway: invalid argument")

	// ErrPersistenceFailure is returned when the fallback file store fails.
	ErrPersistenceFailure = errors.New("gateway: persistence failure")
)

// ListOptions filters a room listing.
type ListOptions struct {
	// Limit keeps the most recent Limit messages. Zero or less means DefaultLimit.
	Limit int
	// Since drops messages with a timestamp (ms) lower than Since.
	Since int64
}

// Gateway is the entry point for message reads and writes.
type Gateway struct {
	adapter *store.Adapter
	files   *store.FileStore
	rooms   store.RoomIndex
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a gateway. adapter and rooms may be nil when the distributed
// store or the room index are disabled.
func New(adapter *store.Adapter, files *store.FileStore, rooms store.RoomIndex, logger zerolog.Logger) *Gateway {
	return &Gateway{
		adapter: adapter,
		files:   files,
		rooms:   rooms,
		logger:  logger.With().Str("component", "gateway").Logger(),
		now:     time.Now,
	}
}

// Insert normalizes raw as a message of room and persists it. The room
// argument wins over any room field inside raw.
func (g *Gateway) Insert(ctx context.Context, room string, raw models.Raw) (models.Message, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return models.Message{}, fmt.Errorf("%w: room is required", ErrInvalidArgument)
	}

	rec := make(models.Raw, len(raw)+1)
	for k, v := range raw {
		rec[k] = v
	}
	rec["room"] = room

	msg, err := normalize.Message(rec)
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	if g.adapter != nil {
		if ok, err := g.adapter.Put(ctx, room, msg); err != nil {
			g.logAdapterFailure(err, "put", room)
		} else if ok {
			metrics.MessagesInserted.WithLabelValues("backend").Inc()
		}
	}

	if err := g.files.Append(ctx, room, msg); err != nil {
		g.logger.Error().Err(err).Str("room", room).Str("id", msg.ID).Msg("fallback append failed")
		return models.Message{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	metrics.MessagesInserted.WithLabelValues("file").Inc()

	if g.rooms != nil {
		if err := g.rooms.Touch(ctx, room, g.now()); err != nil {
			g.logger.Warn().Err(err).Str("room", room).Msg("room index update failed")
		}
	}

	return msg, nil
}

// List returns the messages of room sorted ascending by timestamp, keeping
// the most recent opts.Limit. An unknown room yields an empty slice.
func (g *Gateway) List(ctx context.Context, room string, opts ListOptions) ([]models.Message, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return nil, fmt.Errorf("%w: room is required", ErrInvalidArgument)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	if g.adapter != nil {
		// The adapter truncates before filtering, so it only gets the limit
		// when no filter applies.
		fetch := limit
		if opts.Since > 0 {
			fetch = 0
		}
		msgs, err := g.adapter.Get(ctx, room, fetch)
		if err == nil {
			metrics.MessagesListed.WithLabelValues("backend").Inc()
			return window(msgs, opts.Since, limit), nil
		}
		g.logAdapterFailure(err, "get", room)
		metrics.FallbackReads.WithLabelValues(fallbackReason(err)).Inc()
	} else {
		metrics.FallbackReads.WithLabelValues("disabled").Inc()
	}

	raws, err := g.files.ReadAll(ctx, room)
	if err != nil {
		g.logger.Error().Err(err).Str("room", room).Msg("fallback read failed")
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	metrics.MessagesListed.WithLabelValues("file").Inc()
	return window(normalize.Messages(room, raws), opts.Since, limit), nil
}

// window filters sorted msgs by since and keeps the last limit entries.
// The result is never nil.
func window(msgs []models.Message, since int64, limit int) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Timestamp >= since {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (g *Gateway) logAdapterFailure(err error, op, room string) {
	var ev *zerolog.Event
	switch {
	case errors.Is(err, store.ErrConnectionUnavailable), errors.Is(err, store.ErrEmptyResult):
		ev = g.logger.Debug()
	default:
		ev = g.logger.Warn()
	}
	ev.Err(err).Str("op", op).Str("room", room).Msg("distributed store skipped")
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, store.ErrConnectionUnavailable):
		return "unavailable"
	case errors.Is(err, store.ErrEmptyResult):
		return "empty"
	case errors.Is(err, store.ErrAdapterIncompatibility):
		return "incompatible"
	case errors.Is(err, store.ErrBackendOperation):
		return "backend_error"
	default:
		return "other"
	}
}
