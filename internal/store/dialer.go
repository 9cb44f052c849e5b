package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dialer establishes a connection to the distributed store and returns its
// probed capability set.
type Dialer interface {
	Name() string
	Dial(ctx context.Context) (*Backend, error)
}

// AddrDialer connects to a single Redis server by host and port.
type AddrDialer struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (d AddrDialer) Name() string { return "addr" }

func (d AddrDialer) Dial(ctx context.Context) (*Backend, error) {
	opts := &redis.Options{
		Addr:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Password: d.Password,
		DB:       d.DB,
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts.DialTimeout = time.Until(deadline)
	}
	return pingAndProbe(ctx, d.Name(), redis.NewClient(opts))
}

// OptionsDialer builds a client from universal options, which also cover
// cluster and sentinel deployments. When the configured client cannot be
// reached it retries once with the fallback options (defaults when nil).
// The retry gets its own FallbackTimeout since the configured attempt may
// have used up the caller's deadline.
type OptionsDialer struct {
	Options         *redis.UniversalOptions
	Fallback        *redis.UniversalOptions
	FallbackTimeout time.Duration
}

const defaultFallbackTimeout = 2 * time.Second

func (d OptionsDialer) Name() string { return "options" }

func (d OptionsDialer) Dial(ctx context.Context) (*Backend, error) {
	if d.Options != nil && len(d.Options.Addrs) > 0 {
		b, err := pingAndProbe(ctx, d.Name(), redis.NewUniversalClient(d.Options))
		if err == nil {
			return b, nil
		}
		if d.Fallback == nil && isDefaultAddrs(d.Options.Addrs) {
			return nil, err
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, err
		}
	}

	fallback := d.Fallback
	if fallback == nil {
		fallback = &redis.UniversalOptions{}
	}
	timeout := d.FallbackTimeout
	if timeout <= 0 {
		timeout = defaultFallbackTimeout
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return pingAndProbe(fctx, d.Name()+"/fallback", redis.NewUniversalClient(fallback))
}

func isDefaultAddrs(addrs []string) bool {
	return len(addrs) == 1 && (addrs[0] == "localhost:6379" || addrs[0] == "127.0.0.1:6379")
}

// HandleDialer wraps an already constructed backend value. Its capabilities
// are detected with interface assertions. It is the injection point for
// substitute backends that are not go-redis clients.
type HandleDialer struct {
	Label  string
	Handle any
}

func (d HandleDialer) Name() string {
	if d.Label == "" {
		return "handle"
	}
	return d.Label
}

func (d HandleDialer) Dial(ctx context.Context) (*Backend, error) {
	b, err := Probe(d.Name(), d.Handle)
	if err != nil {
		return nil, err
	}
	if err := b.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", d.Name(), err)
	}
	return b, nil
}

func pingAndProbe(ctx context.Context, name string, client redis.UniversalClient) (*Backend, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping %s: %w", name, err)
	}
	b, err := Probe(name, NewRedisStore(client))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return b, nil
}
