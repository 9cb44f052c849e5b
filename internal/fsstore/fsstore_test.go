package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestEnsureFileKeepsExistingContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "messages.json")
	if err := EnsureFile(path, []byte("{}\n"), FileOptions{}); err != nil {
		t.Fatalf("EnsureFile() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"geral":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := EnsureFile(path, []byte("{}\n"), FileOptions{}); err != nil {
		t.Fatalf("EnsureFile() second call error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"geral":[]}` {
		t.Fatalf("EnsureFile() overwrote content: %q", data)
	}
}

func TestReadWriteJSONAtomic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	in := map[string]any{"ts": int64(1700000000123)}
	if err := WriteJSONAtomic(path, in, FileOptions{}); err != nil {
		t.Fatalf("WriteJSONAtomic() error = %v", err)
	}

	var out map[string]any
	ok, err := ReadJSON(path, &out)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if !ok {
		t.Fatal("ReadJSON() exists = false, want true")
	}
	n, isNumber := out["ts"].(json.Number)
	if !isNumber {
		t.Fatalf("ReadJSON() ts type = %T, want json.Number", out["ts"])
	}
	if got, _ := n.Int64(); got != 1700000000123 {
		t.Fatalf("ReadJSON() ts = %d, want 1700000000123", got)
	}
}

func TestReadJSONMissingAndBlank(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	var out map[string]any
	ok, err := ReadJSON(filepath.Join(root, "missing.json"), &out)
	if err != nil || ok {
		t.Fatalf("ReadJSON(missing) = %v, %v; want false, nil", ok, err)
	}

	blank := filepath.Join(root, "blank.json")
	if err := os.WriteFile(blank, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err = ReadJSON(blank, &out)
	if err != nil || ok {
		t.Fatalf("ReadJSON(blank) = %v, %v; want false, nil", ok, err)
	}
}

func TestReadJSONCorrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	_, err := ReadJSON(path, &out)
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("ReadJSON() error = %v, want ErrDecodeFailed", err)
	}
}

func TestInvalidPath(t *testing.T) {
	t.Parallel()

	if _, err := LockPathFor("  "); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("LockPathFor() error = %v, want ErrInvalidPath", err)
	}
	if err := WriteAtomic("", nil, FileOptions{}); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("WriteAtomic() error = %v, want ErrInvalidPath", err)
	}
}

func TestWithLockSerializesCriticalSections(t *testing.T) {
	t.Parallel()

	lockPath, err := LockPathFor(filepath.Join(t.TempDir(), "messages.json"))
	if err != nil {
		t.Fatal(err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(context.Background(), lockPath, func() error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithLock() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestWithLockHonoursContext(t *testing.T) {
	t.Parallel()

	lockPath, err := LockPathFor(filepath.Join(t.TempDir(), "messages.json"))
	if err != nil {
		t.Fatal(err)
	}

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = WithLock(context.Background(), lockPath, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err = WithLock(ctx, lockPath, func() error { return nil })
	close(release)
	<-done
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("WithLock() error = %v, want ErrLockTimeout", err)
	}
}
