package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Capabilities a backend handle may expose. A handle implements any subset;
// Probe inspects it once and records what is available.
type (
	// ValuePutter stores an opaque value under a key.
	ValuePutter interface {
		PutValue(ctx context.Context, key string, value []byte) error
	}

	// SetAdder adds members to a set.
	SetAdder interface {
		AddToSet(ctx context.Context, key string, members ...string) error
	}

	// MapUpdater merges fields into a map object.
	MapUpdater interface {
		UpdateMap(ctx context.Context, key string, fields map[string]any) error
	}

	// SetReader reads a set. The reply shape is backend specific.
	SetReader interface {
		ReadSet(ctx context.Context, key string) (any, error)
	}

	// BatchReader reads several map objects in one round trip.
	BatchReader interface {
		ReadBatch(ctx context.Context, keys []string) ([]any, error)
	}

	// MapReader reads a single map object.
	MapReader interface {
		ReadMap(ctx context.Context, key string) (any, error)
	}

	// Getter reads a single object by key.
	Getter interface {
		Get(ctx context.Context, key string) (any, error)
	}

	// Pinger checks liveness.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Closer releases the handle.
	Closer interface {
		Close() error
	}

	// RedisHandle exposes the underlying go-redis client, when there is one.
	RedisHandle interface {
		RedisClient() redis.UniversalClient
	}
)

// Backend is the capability set of a connected distributed store, resolved
// once when the connection is established.
type Backend struct {
	name string

	putValue  func(ctx context.Context, key string, value []byte) error
	addToSet  func(ctx context.Context, key string, members ...string) error
	updateMap func(ctx context.Context, key string, fields map[string]any) error
	readSet   func(ctx context.Context, key string) (any, error)
	readBatch func(ctx context.Context, keys []string) ([]any, error)
	readMap   func(ctx context.Context, key string) (any, error)
	get       func(ctx context.Context, key string) (any, error)
	ping      func(ctx context.Context) error
	close     func() error

	client redis.UniversalClient
}

// Probe builds a Backend from whatever capabilities handle implements. The
// handle is recognized as a client when it can read a set, update a map or
// put a value; anything else is ErrAdapterIncompatibility.
func Probe(name string, handle any) (*Backend, error) {
	if handle == nil {
		return nil, fmt.Errorf("%w: %s: nil handle", ErrAdapterIncompatibility, name)
	}

	b := &Backend{name: name}
	if c, ok := handle.(ValuePutter); ok {
		b.putValue = c.PutValue
	}
	if c, ok := handle.(SetAdder); ok {
		b.addToSet = c.AddToSet
	}
	if c, ok := handle.(MapUpdater); ok {
		b.updateMap = c.UpdateMap
	}
	if c, ok := handle.(SetReader); ok {
		b.readSet = c.ReadSet
	}
	if c, ok := handle.(BatchReader); ok {
		b.readBatch = c.ReadBatch
	}
	if c, ok := handle.(MapReader); ok {
		b.readMap = c.ReadMap
	}
	if c, ok := handle.(Getter); ok {
		b.get = c.Get
	}
	if c, ok := handle.(Pinger); ok {
		b.ping = c.Ping
	}
	if c, ok := handle.(Closer); ok {
		b.close = c.Close
	}
	if c, ok := handle.(RedisHandle); ok {
		b.client = c.RedisClient()
	}

	if b.readSet == nil && b.updateMap == nil && b.putValue == nil {
		return nil, fmt.Errorf("%w: %s (%T) exposes no known operation", ErrAdapterIncompatibility, name, handle)
	}
	return b, nil
}

// Name identifies the dialer that produced the backend.
func (b *Backend) Name() string { return b.name }

// CanWrite reports whether at least one write pattern is available.
func (b *Backend) CanWrite() bool {
	return b.putValue != nil || (b.addToSet != nil && b.updateMap != nil)
}

// CanList reports whether room listings can be served.
func (b *Backend) CanList() bool {
	return b.readSet != nil && (b.readBatch != nil || b.readMap != nil || b.get != nil)
}

// Ping checks the backend when it supports liveness checks.
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// Close releases the backend handle.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}
