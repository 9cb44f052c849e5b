package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomlog/internal/models"
)

func addrDialerFor(t *testing.T, mr *miniredis.Miniredis) AddrDialer {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatal(err)
	}
	return AddrDialer{Host: mr.Host(), Port: port}
}

func TestRedisBackendRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)

	dialers := map[string]Dialer{
		"addr":          addrDialerFor(t, mr),
		"options resp2": OptionsDialer{Options: &redis.UniversalOptions{Addrs: []string{mr.Addr()}, Protocol: 2}},
		"options resp3": OptionsDialer{Options: &redis.UniversalOptions{Addrs: []string{mr.Addr()}, Protocol: 3}},
	}
	for name, d := range dialers {
		t.Run(name, func(t *testing.T) {
			mr.FlushAll()

			m := NewManager(zerolog.Nop(), ManagerConfig{DialTimeout: time.Second}, d)
			defer m.Close()
			a := NewAdapter(m, time.Second, zerolog.Nop())
			ctx := context.Background()

			msgs := []models.Message{
				{ID: "01B", Room: "geral", Author: "bia", Text: "segunda", Timestamp: 200},
				{ID: "01A", Room: "geral", Author: "ana", Text: "oi", Timestamp: 100},
				{ID: "01C", Room: "geral", FileName: "a.png", FileMime: "image/png", FileSize: 42, FileBucket: "uploads", FileObject: "1_a.png", Timestamp: 300},
			}
			for _, msg := range msgs {
				ok, err := a.Put(ctx, "geral", msg)
				if err != nil || !ok {
					t.Fatalf("Put() = %v, %v", ok, err)
				}
			}

			if !mr.Exists("messages:geral:01A") {
				t.Fatal("key-value record was not written")
			}
			if got := mr.HGet("message:01A", "author"); got != "ana" {
				t.Fatalf("hash author = %q", got)
			}
			if ok, _ := mr.SIsMember("chat_room:geral", "01C"); !ok {
				t.Fatal("id missing from room set")
			}

			got, err := a.Get(ctx, "geral", 0)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			want := []models.Message{msgs[1], msgs[0], msgs[2]}
			if len(got) != len(want) {
				t.Fatalf("Get() = %+v", got)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("Get()[%d] = %+v, want %+v", i, got[i], want[i])
				}
			}

			if _, ok := m.RedisClient(); !ok {
				t.Fatal("RedisClient() not available on a redis backend")
			}
		})
	}
}

func TestRedisStoreGet(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client)
	defer s.Close()
	ctx := context.Background()

	if v, err := s.Get(ctx, "missing"); err != nil || v != nil {
		t.Fatalf("Get(missing) = %v, %v", v, err)
	}
	if err := s.PutValue(ctx, "k", []byte(`{"text":"oi"}`)); err != nil {
		t.Fatal(err)
	}
	v, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if rec, ok := v.(map[string]any); !ok || rec["text"] != "oi" {
		t.Fatalf("Get(k) = %#v", v)
	}
	if raw, err := s.ReadSet(ctx, "nothing"); err != nil {
		t.Fatalf("ReadSet(empty) error = %v", err)
	} else if ids, err := extractIDs(raw); err != nil || len(ids) != 0 {
		t.Fatalf("ReadSet(empty) ids = %v, %v", ids, err)
	}
}

func TestAddrDialerUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	d := addrDialerFor(t, mr)
	mr.Close()

	m := NewManager(zerolog.Nop(), ManagerConfig{DialTimeout: 500 * time.Millisecond}, d)
	if err := m.Initialize(context.Background()); err == nil {
		t.Fatal("Initialize() succeeded against a closed server")
	}
	if m.State() != StateUnavailable {
		t.Fatalf("state = %v, want unavailable", m.State())
	}
}

func TestOptionsDialerFallbackHasOwnTimeout(t *testing.T) {
	gone := miniredis.RunT(t)
	goneAddr := gone.Addr()
	gone.Close()
	live := miniredis.RunT(t)

	d := OptionsDialer{
		Options:         &redis.UniversalOptions{Addrs: []string{goneAddr}},
		Fallback:        &redis.UniversalOptions{Addrs: []string{live.Addr()}},
		FallbackTimeout: time.Second,
	}

	// The configured attempt leaves no time on the caller's deadline.
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
	defer cancel()

	b, err := d.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer b.Close()
	if b.Name() != "options/fallback" {
		t.Fatalf("Name() = %q, want options/fallback", b.Name())
	}
}

func TestOptionsDialerCanceledSkipsFallback(t *testing.T) {
	gone := miniredis.RunT(t)
	goneAddr := gone.Addr()
	gone.Close()
	live := miniredis.RunT(t)

	d := OptionsDialer{
		Options:  &redis.UniversalOptions{Addrs: []string{goneAddr}},
		Fallback: &redis.UniversalOptions{Addrs: []string{live.Addr()}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Dial(ctx); err == nil {
		t.Fatal("Dial() succeeded on a canceled context")
	}
}
