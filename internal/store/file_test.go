package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomlog/internal/models"
	"github.com/eldtechnologies/roomlog/internal/normalize"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "data", "messages.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return s
}

func TestFileStoreCreatesEmptyDocument(t *testing.T) {
	s := newTestFileStore(t)
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "{}" {
		t.Fatalf("initial file = %q, want {}", data)
	}
	recs, err := s.ReadAll(context.Background(), "geral")
	if err != nil {
		t.Fatal(err)
	}
	if recs == nil || len(recs) != 0 {
		t.Fatalf("ReadAll() = %#v, want empty slice", recs)
	}
}

func TestFileStoreAppendAndRead(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	msgs := []models.Message{
		{ID: "1", Room: "geral", Author: "ana", Text: "oi", Timestamp: 100},
		{ID: "2", Room: "outra", Author: "bia", Text: "ola", Timestamp: 50},
		{ID: "3", Room: "geral", FileName: "a.png", FileSize: 7, Timestamp: 200},
	}
	for _, msg := range msgs {
		if err := s.Append(ctx, msg.Room, msg); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	recs, err := s.ReadAll(ctx, "geral")
	if err != nil {
		t.Fatal(err)
	}
	got := normalize.Messages("geral", recs)
	if len(got) != 2 || got[0] != msgs[0] || got[1] != msgs[2] {
		t.Fatalf("ReadAll(geral) = %+v", got)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  \"geral\": [\n") {
		t.Fatalf("file is not indented with two spaces:\n%s", data)
	}

	rooms, err := s.Rooms(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rooms["geral"] != 2 || rooms["outra"] != 1 {
		t.Fatalf("Rooms() = %v", rooms)
	}
	h, err := s.Health(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if h.Rooms != 2 || h.Messages != 3 || h.Provider != "file" {
		t.Fatalf("Health() = %+v", h)
	}
}

func TestFileStoreConcurrentAppends(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := models.Message{ID: fmt.Sprintf("m%02d", i), Room: "geral", Text: "x", Timestamp: int64(i + 1)}
			if err := s.Append(ctx, "geral", msg); err != nil {
				t.Errorf("Append(%d) error = %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	recs, err := s.ReadAll(ctx, "geral")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != n {
		t.Fatalf("ReadAll() len = %d, want %d", len(recs), n)
	}
}

func TestFileStoreKeepsOtherRoomsVerbatim(t *testing.T) {
	s := newTestFileStore(t)
	legacy := `{"antiga": [{"autor": "zé", "texto": "velho", "timestamp": 1, "extra": {"a": 1}}]}`
	if err := os.WriteFile(s.Path(), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(context.Background(), "geral", models.Message{ID: "1", Room: "geral", Timestamp: 5}); err != nil {
		t.Fatal(err)
	}

	recs, err := s.ReadAll(context.Background(), "antiga")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0]["texto"] != "velho" || recs[0]["extra"] == nil {
		t.Fatalf("ReadAll(antiga) = %v", recs)
	}
}

func TestFileStoreLegacyArray(t *testing.T) {
	s := newTestFileStore(t)
	legacy := `[
		{"id": "a", "room": "geral", "text": "um", "ts": 1},
		{"id": "b", "text": "sem sala", "ts": 2},
		{"id": "c", "room": "outra", "text": "tres", "ts": 3}
	]`
	if err := os.WriteFile(s.Path(), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	recs, err := s.ReadAll(ctx, "geral")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("ReadAll(geral) on legacy array = %v", recs)
	}

	if err := s.Append(ctx, "geral", models.Message{ID: "d", Room: "geral", Timestamp: 4}); err != nil {
		t.Fatal(err)
	}
	rooms, err := s.Rooms(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rooms["geral"] != 3 || rooms["outra"] != 1 {
		t.Fatalf("Rooms() after migrating legacy file = %v", rooms)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	s := newTestFileStore(t)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := s.ReadAll(ctx, "geral"); !errors.Is(err, ErrPersistenceFailure) {
		t.Fatalf("ReadAll() error = %v, want ErrPersistenceFailure", err)
	}
	if err := s.Append(ctx, "geral", models.Message{ID: "1", Room: "geral", Timestamp: 1}); !errors.Is(err, ErrPersistenceFailure) {
		t.Fatalf("Append() error = %v, want ErrPersistenceFailure", err)
	}
	data, _ := os.ReadFile(s.Path())
	if string(data) != "{not json" {
		t.Fatal("corrupt file was overwritten")
	}
}
