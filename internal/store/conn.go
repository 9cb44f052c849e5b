package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomlog/internal/metrics"
)

// State is the lifecycle state of the distributed store connection.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ManagerConfig bounds connection attempts.
type ManagerConfig struct {
	DialTimeout   time.Duration
	RetryInterval time.Duration
}

// Manager owns the connection to the distributed store. A ready backend is
// cached and shared; an unavailable one is retried at most once per
// RetryInterval. Only one dial runs at a time and callers arriving during
// a dial get ErrConnectionUnavailable instead of waiting.
type Manager struct {
	dialers []Dialer
	cfg     ManagerConfig
	logger  zerolog.Logger
	now     func() time.Time

	mu          sync.Mutex
	state       State
	backend     *Backend
	lastErr     error
	lastAttempt time.Time
}

// NewManager creates a manager that tries dialers in order.
func NewManager(logger zerolog.Logger, cfg ManagerConfig, dialers ...Dialer) *Manager {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	return &Manager{
		dialers: dialers,
		cfg:     cfg,
		logger:  logger.With().Str("component", "store.manager").Logger(),
		now:     time.Now,
	}
}

// Initialize connects unless a backend is already cached. It never panics;
// failures are logged and returned wrapped in ErrConnectionUnavailable.
func (m *Manager) Initialize(ctx context.Context) error {
	_, err := m.connect(ctx, true)
	return err
}

// Backend returns the cached backend, reconnecting when the retry interval
// has elapsed since the last failed attempt.
func (m *Manager) Backend(ctx context.Context) (*Backend, error) {
	return m.connect(ctx, false)
}

func (m *Manager) connect(ctx context.Context, force bool) (*Backend, error) {
	m.mu.Lock()
	switch m.state {
	case StateReady:
		b := m.backend
		m.mu.Unlock()
		return b, nil
	case StateInitializing:
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: connection in progress", ErrConnectionUnavailable)
	case StateUnavailable:
		if !force && m.now().Sub(m.lastAttempt) < m.cfg.RetryInterval {
			err := m.lastErr
			m.mu.Unlock()
			return nil, err
		}
	}
	m.setState(StateInitializing)
	m.lastAttempt = m.now()
	m.mu.Unlock()

	b, err := m.dial(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.lastErr = fmt.Errorf("%w: %w", ErrConnectionUnavailable, err)
		m.setState(StateUnavailable)
		m.logger.Warn().Err(err).Dur("retry_in", m.cfg.RetryInterval).Msg("distributed store unavailable")
		return nil, m.lastErr
	}
	m.backend = b
	m.lastErr = nil
	m.setState(StateReady)
	m.logger.Info().Str("dialer", b.Name()).Msg("distributed store connected")
	return b, nil
}

func (m *Manager) dial(ctx context.Context) (*Backend, error) {
	if len(m.dialers) == 0 {
		return nil, errors.New("no dialers configured")
	}
	var errs []error
	for _, d := range m.dialers {
		dctx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
		b, err := d.Dial(dctx)
		cancel()
		if err == nil {
			return b, nil
		}
		m.logger.Debug().Err(err).Str("dialer", d.Name()).Msg("dial failed")
		errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
	}
	return nil, errors.Join(errs...)
}

// setState must be called with mu held.
func (m *Manager) setState(s State) {
	m.state = s
	metrics.StoreConnectionState.Set(float64(s))
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error of the last failed attempt, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// RedisClient returns the go-redis client of the cached backend, when the
// backend is Redis and ready.
func (m *Manager) RedisClient() (redis.UniversalClient, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady || m.backend == nil || m.backend.client == nil {
		return nil, false
	}
	return m.backend.client, true
}

// Close releases the cached backend and resets the manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.backend
	m.backend = nil
	m.setState(StateUninitialized)
	if b == nil {
		return nil
	}
	return b.Close()
}
