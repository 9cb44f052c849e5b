package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomlog/internal/fsstore"
	"github.com/eldtechnologies/roomlog/internal/metrics"
	"github.com/eldtechnologies/roomlog/internal/models"
	"github.com/eldtechnologies/roomlog/internal/normalize"
)

// FileStore is the local fallback: one JSON file mapping each room to its
// records in insertion order. Every append rewrites the whole file under an
// in-process mutex and an advisory lock file, and the rewrite is atomic, so
// readers never observe a partial file and concurrent appends are not lost.
type FileStore struct {
	path     string
	lockPath string
	opts     fsstore.FileOptions
	logger   zerolog.Logger

	mu sync.Mutex
}

// FileHealth describes the fallback file.
type FileHealth struct {
	Provider string `json:"provider"`
	Path     string `json:"path"`
	Rooms    int    `json:"rooms"`
	Messages int    `json:"messages"`
}

// document is the on-disk layout. Records are kept as raw JSON so rooms
// that are not being written round-trip untouched.
type document map[string][]json.RawMessage

// NewFileStore opens the file at path, creating it as an empty object when
// missing.
func NewFileStore(path string, logger zerolog.Logger) (*FileStore, error) {
	lockPath, err := fsstore.LockPathFor(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	s := &FileStore{
		path:     path,
		lockPath: lockPath,
		logger:   logger.With().Str("component", "store.file").Logger(),
	}
	if err := fsstore.EnsureFile(path, []byte("{}\n"), s.opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return s, nil
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Append adds msg to the end of room's records.
func (s *FileStore) Append(ctx context.Context, room string, msg models.Message) error {
	defer observe("append", time.Now())

	rec, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode message: %v", ErrPersistenceFailure, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = fsstore.WithLock(ctx, s.lockPath, func() error {
		doc, err := s.load(room)
		if err != nil {
			return err
		}
		doc[room] = append(doc[room], rec)
		return fsstore.WriteJSONAtomic(s.path, doc, s.opts)
	})
	if err != nil {
		return fmt.Errorf("%w: append to %s: %v", ErrPersistenceFailure, s.path, err)
	}
	return nil
}

// ReadAll returns the stored records of room in insertion order. Reads do
// not take the lock: writes replace the file atomically.
func (s *FileStore) ReadAll(ctx context.Context, room string) ([]models.Raw, error) {
	defer observe("read", time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.load(room)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrPersistenceFailure, s.path, err)
	}

	recs := doc[room]
	out := make([]models.Raw, 0, len(recs))
	for _, rec := range recs {
		raw, err := decodeRecord(rec)
		if err != nil {
			s.logger.Debug().Err(err).Str("room", room).Msg("skipping undecodable record")
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}

// Rooms returns the number of stored records per room.
func (s *FileStore) Rooms(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.load("")
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrPersistenceFailure, s.path, err)
	}
	out := make(map[string]int, len(doc))
	for room, recs := range doc {
		out[room] = len(recs)
	}
	return out, nil
}

// Health reads the file and reports its size in rooms and messages.
func (s *FileStore) Health(ctx context.Context) (FileHealth, error) {
	h := FileHealth{Provider: "file", Path: s.path}
	rooms, err := s.Rooms(ctx)
	if err != nil {
		return h, err
	}
	h.Rooms = len(rooms)
	for _, n := range rooms {
		h.Messages += n
	}
	return h, nil
}

// load reads the document. A legacy file holding a bare array is regrouped
// by each record's room; records without one are attributed to room.
func (s *FileStore) load(room string) (document, error) {
	var data json.RawMessage
	found, err := fsstore.ReadJSON(s.path, &data)
	if err != nil {
		return nil, err
	}
	doc := document{}
	if !found {
		return doc, nil
	}

	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '{':
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", fsstore.ErrDecodeFailed, err)
		}
	case len(trimmed) > 0 && trimmed[0] == '[':
		var legacy []json.RawMessage
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("%w: %v", fsstore.ErrDecodeFailed, err)
		}
		for _, rec := range legacy {
			target := room
			if raw, err := decodeRecord(rec); err == nil {
				if r := strings.TrimSpace(normalize.String(raw["room"])); r != "" {
					target = r
				}
			}
			if target == "" {
				continue
			}
			doc[target] = append(doc[target], rec)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected top-level value", fsstore.ErrDecodeFailed)
	}
	if doc == nil {
		doc = document{}
	}
	return doc, nil
}

func decodeRecord(rec json.RawMessage) (models.Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(rec))
	dec.UseNumber()
	var raw models.Raw
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("null record")
	}
	return raw, nil
}

func observe(op string, start time.Time) {
	metrics.FileStoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
