package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomlog/internal/metrics"
	"github.com/eldtechnologies/roomlog/internal/models"
	"github.com/eldtechnologies/roomlog/internal/normalize"
)

// Key layout shared by every backend.
func roomSetKey(room string) string { return "chat_room:" + room }

func messageMapKey(id string) string { return "message:" + id }

func messageValueKey(room, id string) string { return "messages:" + room + ":" + id }

// recordFields are read back from message maps, in canonical spelling.
var recordFields = []string{
	"room", "author", "text", "ts", "timestamp",
	"file_bucket", "file_object", "file_name", "file_mime", "file_size",
}

// writePattern is one way of persisting a message. Patterns are additive:
// every available one runs.
type writePattern struct {
	name      string
	available func(b *Backend) bool
	write     func(ctx context.Context, b *Backend, room string, msg models.Message) error
}

var writePatterns = []writePattern{
	{
		name:      "kv",
		available: func(b *Backend) bool { return b.putValue != nil },
		write: func(ctx context.Context, b *Backend, room string, msg models.Message) error {
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			return b.putValue(ctx, messageValueKey(room, msg.ID), data)
		},
	},
	{
		name:      "composite",
		available: func(b *Backend) bool { return b.addToSet != nil && b.updateMap != nil },
		write: func(ctx context.Context, b *Backend, room string, msg models.Message) error {
			// The map goes first so a listed id always resolves.
			if err := b.updateMap(ctx, messageMapKey(msg.ID), msg.Fields()); err != nil {
				return fmt.Errorf("update map: %w", err)
			}
			if err := b.addToSet(ctx, roomSetKey(room), msg.ID); err != nil {
				return fmt.Errorf("add to set: %w", err)
			}
			return nil
		},
	},
}

// Adapter reads and writes messages through whatever backend the Manager
// provides, tolerating the shape differences between client versions.
type Adapter struct {
	manager   *Manager
	opTimeout time.Duration
	logger    zerolog.Logger
}

// NewAdapter creates an adapter. Every backend call is bounded by opTimeout.
func NewAdapter(manager *Manager, opTimeout time.Duration, logger zerolog.Logger) *Adapter {
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	return &Adapter{
		manager:   manager,
		opTimeout: opTimeout,
		logger:    logger.With().Str("component", "store.adapter").Logger(),
	}
}

// Put writes msg with every write pattern the backend supports. It returns
// true when at least one pattern succeeded.
func (a *Adapter) Put(ctx context.Context, room string, msg models.Message) (bool, error) {
	b, err := a.manager.Backend(ctx)
	if err != nil {
		return false, err
	}

	var (
		ok   bool
		errs []error
	)
	for _, p := range writePatterns {
		if !p.available(b) {
			continue
		}
		err := a.timed(ctx, "put_"+p.name, func(ctx context.Context) error {
			return p.write(ctx, b, room, msg)
		})
		if err != nil {
			a.logger.Warn().Err(err).Str("pattern", p.name).Str("room", room).Str("id", msg.ID).Msg("write pattern failed")
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
			continue
		}
		ok = true
	}
	if ok {
		return true, nil
	}
	if len(errs) == 0 {
		return false, fmt.Errorf("%w: %s has no write operation", ErrAdapterIncompatibility, b.Name())
	}
	return false, fmt.Errorf("%w: %w", ErrAdapterIncompatibility, errors.Join(errs...))
}

// Get returns the messages of room, sorted by timestamp. limit > 0 keeps
// only the most recent limit messages. A room with nothing readable is
// ErrEmptyResult, which callers must not take as proof of an empty room.
func (a *Adapter) Get(ctx context.Context, room string, limit int) ([]models.Message, error) {
	b, err := a.manager.Backend(ctx)
	if err != nil {
		return nil, err
	}
	if !b.CanList() {
		return nil, fmt.Errorf("%w: %s cannot list rooms", ErrAdapterIncompatibility, b.Name())
	}

	var rawIDs any
	err = a.timed(ctx, "read_set", func(ctx context.Context) error {
		var err error
		rawIDs, err = b.readSet(ctx, roomSetKey(room))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read id set: %v", ErrBackendOperation, err)
	}
	ids, err := extractIDs(rawIDs)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrEmptyResult
	}
	// ULIDs sort by creation time, which gives equal timestamps a stable order.
	sort.Strings(ids)

	records, err := a.readRecords(ctx, b, ids)
	if err != nil {
		return nil, err
	}

	raws := make([]models.Raw, 0, len(records))
	for i, rec := range records {
		raw := recordToRaw(rec)
		if raw == nil {
			continue
		}
		raw["id"] = ids[i]
		raws = append(raws, raw)
	}
	msgs := normalize.Messages(room, raws)
	if len(msgs) == 0 {
		return nil, ErrEmptyResult
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (a *Adapter) readRecords(ctx context.Context, b *Backend, ids []string) ([]any, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = messageMapKey(id)
	}

	if b.readBatch != nil {
		var records []any
		err := a.timed(ctx, "read_batch", func(ctx context.Context) error {
			var err error
			records, err = b.readBatch(ctx, keys)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%w: batch read: %v", ErrBackendOperation, err)
		}
		if len(records) != len(keys) {
			return nil, fmt.Errorf("%w: batch read returned %d records for %d keys", ErrAdapterIncompatibility, len(records), len(keys))
		}
		return records, nil
	}

	readOne := b.readMap
	if readOne == nil {
		readOne = b.get
	}
	records := make([]any, len(keys))
	for i, key := range keys {
		err := a.timed(ctx, "read_one", func(ctx context.Context) error {
			var err error
			records[i], err = readOne(ctx, key)
			return err
		})
		if err != nil {
			a.logger.Debug().Err(err).Str("key", key).Msg("skipping unreadable record")
			records[i] = nil
		}
	}
	return records, nil
}

// recordToRaw pulls the canonical fields out of a backend record. It
// returns nil for records carrying none of them.
func recordToRaw(rec any) models.Raw {
	if rec == nil {
		return nil
	}
	raw := make(models.Raw, len(recordFields)+1)
	for _, field := range recordFields {
		v, err := Extract(rec, field)
		if err != nil {
			continue
		}
		raw[field] = v
	}
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func (a *Adapter) timed(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.opTimeout)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	metrics.BackendLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return err
}
