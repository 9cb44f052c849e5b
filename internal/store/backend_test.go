package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

// memBackend is an in-memory backend implementing every capability.
type memBackend struct {
	mu     sync.Mutex
	values map[string][]byte
	sets   map[string][]string
	maps   map[string]map[string]any

	putErr     error
	mapErr     error
	setErr     error
	readSetErr error
	batchErr   error
	pingErr    error

	// setReply, when set, replaces the ReadSet reply.
	setReply any
	// records, when set, replaces the map read for a key.
	records map[string]any
}

func newMemBackend() *memBackend {
	return &memBackend{
		values: map[string][]byte{},
		sets:   map[string][]string{},
		maps:   map[string]map[string]any{},
	}
}

func (m *memBackend) PutValue(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *memBackend) AddToSet(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets[key] = append(m.sets[key], members...)
	return nil
}

func (m *memBackend) UpdateMap(_ context.Context, key string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mapErr != nil {
		return m.mapErr
	}
	if m.maps[key] == nil {
		m.maps[key] = map[string]any{}
	}
	for k, v := range fields {
		m.maps[key][k] = v
	}
	return nil
}

func (m *memBackend) ReadSet(_ context.Context, key string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readSetErr != nil {
		return nil, m.readSetErr
	}
	if m.setReply != nil {
		return m.setReply, nil
	}
	members, ok := m.sets[key]
	if !ok {
		return nil, nil
	}
	out := make([]any, len(members))
	for i, id := range members {
		out[i] = id
	}
	return out, nil
}

func (m *memBackend) ReadMap(_ context.Context, key string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readMapLocked(key)
}

func (m *memBackend) readMapLocked(key string) (any, error) {
	if rec, ok := m.records[key]; ok {
		if err, ok := rec.(error); ok {
			return nil, err
		}
		return rec, nil
	}
	fields, ok := m.maps[key]
	if !ok {
		return nil, nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

func (m *memBackend) ReadBatch(_ context.Context, keys []string) ([]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := make([]any, len(keys))
	for i, key := range keys {
		rec, err := m.readMapLocked(key)
		if err != nil {
			continue
		}
		out[i] = rec
	}
	return out, nil
}

func (m *memBackend) Ping(context.Context) error {
	return m.pingErr
}

func (m *memBackend) setMembers(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.sets[key]...)
	sort.Strings(out)
	return out
}

func (m *memBackend) value(key string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.values[key]
	if !ok {
		return nil, errors.New("missing value")
	}
	var out map[string]any
	err := json.Unmarshal(data, &out)
	return out, err
}

// setAndMapReader exposes only one-by-one reads.
type setAndMapReader struct {
	m *memBackend
}

func (r setAndMapReader) ReadSet(ctx context.Context, key string) (any, error) {
	return r.m.ReadSet(ctx, key)
}

func (r setAndMapReader) ReadMap(ctx context.Context, key string) (any, error) {
	return r.m.ReadMap(ctx, key)
}

// setAndGetter reads items with Get only.
type setAndGetter struct {
	m *memBackend
}

func (r setAndGetter) ReadSet(ctx context.Context, key string) (any, error) {
	return r.m.ReadSet(ctx, key)
}

func (r setAndGetter) Get(ctx context.Context, key string) (any, error) {
	return r.m.ReadMap(ctx, key)
}

// valueOnly supports the key-value write pattern and nothing else.
type valueOnly struct {
	m *memBackend
}

func (v valueOnly) PutValue(ctx context.Context, key string, value []byte) error {
	return v.m.PutValue(ctx, key, value)
}

// fakeDialer counts dials and returns a probed handle or an error.
type fakeDialer struct {
	mu     sync.Mutex
	dials  int
	err    error
	handle any
}

func (d *fakeDialer) Name() string { return "fake" }

func (d *fakeDialer) Dial(ctx context.Context) (*Backend, error) {
	d.mu.Lock()
	d.dials++
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return HandleDialer{Label: "fake", Handle: d.handle}.Dial(ctx)
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}
