package store

import (
	"context"
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomlog/internal/metrics"
)

func newTestManager(t *testing.T, dialers ...Dialer) (*Manager, *time.Time) {
	t.Helper()
	m := NewManager(zerolog.Nop(), ManagerConfig{DialTimeout: time.Second, RetryInterval: 10 * time.Second}, dialers...)
	clock := time.UnixMilli(1_000_000)
	m.now = func() time.Time { return clock }
	t.Cleanup(func() { _ = m.Close() })
	return m, &clock
}

func TestManagerReadyIsCached(t *testing.T) {
	d := &fakeDialer{handle: newMemBackend()}
	m, _ := newTestManager(t, d)

	if m.State() != StateUninitialized {
		t.Fatalf("initial state = %v", m.State())
	}
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	b1, err := m.Backend(context.Background())
	if err != nil {
		t.Fatalf("Backend() error = %v", err)
	}
	b2, _ := m.Backend(context.Background())
	if b1 != b2 {
		t.Fatal("Backend() did not reuse the cached backend")
	}
	if d.count() != 1 {
		t.Fatalf("dials = %d, want 1", d.count())
	}
	if m.State() != StateReady {
		t.Fatalf("state = %v, want ready", m.State())
	}
}

func TestManagerRetriesAfterInterval(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused"), handle: newMemBackend()}
	m, clock := newTestManager(t, d)

	err := m.Initialize(context.Background())
	if !errors.Is(err, ErrConnectionUnavailable) {
		t.Fatalf("Initialize() error = %v, want ErrConnectionUnavailable", err)
	}
	if m.State() != StateUnavailable {
		t.Fatalf("state = %v, want unavailable", m.State())
	}

	// Within the retry interval no new dial happens.
	*clock = clock.Add(5 * time.Second)
	if _, err := m.Backend(context.Background()); !errors.Is(err, ErrConnectionUnavailable) {
		t.Fatalf("Backend() error = %v", err)
	}
	if d.count() != 1 {
		t.Fatalf("dials = %d, want 1", d.count())
	}

	d.setErr(nil)
	*clock = clock.Add(6 * time.Second)
	if _, err := m.Backend(context.Background()); err != nil {
		t.Fatalf("Backend() after interval error = %v", err)
	}
	if d.count() != 2 {
		t.Fatalf("dials = %d, want 2", d.count())
	}
	if m.State() != StateReady {
		t.Fatalf("state = %v, want ready", m.State())
	}
}

func TestManagerInitializeForcesRetry(t *testing.T) {
	d := &fakeDialer{err: errors.New("down"), handle: newMemBackend()}
	m, _ := newTestManager(t, d)

	_ = m.Initialize(context.Background())
	d.setErr(nil)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if d.count() != 2 {
		t.Fatalf("dials = %d, want 2", d.count())
	}
}

func TestManagerTriesDialersInOrder(t *testing.T) {
	failing := &fakeDialer{err: errors.New("nope")}
	working := &fakeDialer{handle: newMemBackend()}
	m, _ := newTestManager(t, failing, working)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if failing.count() != 1 || working.count() != 1 {
		t.Fatalf("dials = %d/%d, want 1/1", failing.count(), working.count())
	}
}

func TestManagerWithoutDialers(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Initialize(context.Background()); !errors.Is(err, ErrConnectionUnavailable) {
		t.Fatalf("Initialize() error = %v", err)
	}
	if m.LastError() == nil {
		t.Fatal("LastError() = nil after failed attempt")
	}
	if _, ok := m.RedisClient(); ok {
		t.Fatal("RedisClient() ok without a connection")
	}
}

func TestManagerUnrecognizedHandle(t *testing.T) {
	m, _ := newTestManager(t, HandleDialer{Handle: struct{ Name string }{"x"}})
	err := m.Initialize(context.Background())
	if !errors.Is(err, ErrConnectionUnavailable) || !errors.Is(err, ErrAdapterIncompatibility) {
		t.Fatalf("Initialize() error = %v", err)
	}
}

func TestManagerPingFailure(t *testing.T) {
	mem := newMemBackend()
	mem.pingErr = errors.New("not ready")
	m, _ := newTestManager(t, HandleDialer{Handle: mem})
	if err := m.Initialize(context.Background()); !errors.Is(err, ErrConnectionUnavailable) {
		t.Fatalf("Initialize() error = %v", err)
	}
}

func TestManagerCloseResets(t *testing.T) {
	m, _ := newTestManager(t, &fakeDialer{handle: newMemBackend()})
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := connectionGauge(t); got != float64(StateReady) {
		t.Fatalf("connection state gauge = %v, want %v", got, float64(StateReady))
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if m.State() != StateUninitialized {
		t.Fatalf("state after Close = %v", m.State())
	}
	if got := connectionGauge(t); got != float64(StateUninitialized) {
		t.Fatalf("connection state gauge after Close = %v, want %v", got, float64(StateUninitialized))
	}
}

func connectionGauge(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.StoreConnectionState.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetGauge().GetValue()
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateUninitialized: "uninitialized",
		StateInitializing:  "initializing",
		StateReady:         "ready",
		StateUnavailable:   "unavailable",
		State(42):          "unknown",
	} {
		if s.String() != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
