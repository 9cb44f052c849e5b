package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomlog/internal/gateway"
	"github.com/eldtechnologies/roomlog/internal/handlers"
	"github.com/eldtechnologies/roomlog/internal/store"
)

func newTestRouter(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	files, err := store.NewFileStore(filepath.Join(dir, "messages.json"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	rooms, err := store.NewSQLiteRoomIndex(context.Background(), filepath.Join(dir, "rooms.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(rooms.Close)

	publicDir := filepath.Join(dir, "public")
	if err := os.MkdirAll(publicDir, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(publicDir, "index.html"), []byte("<h1>chat</h1>"), 0o644)
	os.WriteFile(filepath.Join(publicDir, "app.js"), []byte("console.log(1)"), 0o644)

	router := NewRouter(zerolog.Nop(), Options{
		Handlers: handlers.Deps{
			Gateway:        gateway.New(nil, files, rooms, zerolog.Nop()),
			Files:          files,
			Rooms:          rooms,
			UploadDir:      filepath.Join(dir, "uploads"),
			MaxUploadBytes: 1 << 20,
			Logger:         zerolog.Nop(),
		},
		PublicDir: publicDir,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestRouterStaticFiles(t *testing.T) {
	srv := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	if got := body(t, resp); got != "<h1>chat</h1>" {
		t.Errorf("index = %q", got)
	}

	resp, err = http.Get(srv.URL + "/app.js")
	if err != nil {
		t.Fatal(err)
	}
	if got := body(t, resp); got != "console.log(1)" {
		t.Errorf("app.js = %q", got)
	}

	resp, err = http.Get(srv.URL + "/uploads/")
	if err != nil {
		t.Fatal(err)
	}
	body(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("upload listing status = %d, want 404", resp.StatusCode)
	}
}

func TestRouterMessagesFlow(t *testing.T) {
	srv := newTestRouter(t)

	resp, err := http.Post(srv.URL+"/rooms/geral/messages", "application/json", strings.NewReader(`{"author":"ana","text":"oi"}`))
	if err != nil {
		t.Fatal(err)
	}
	body(t, resp)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("post status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/rooms/geral/messages")
	if err != nil {
		t.Fatal(err)
	}
	var list []handlers.MessageResponse
	if err := json.Unmarshal([]byte(body(t, resp)), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Text != "oi" {
		t.Errorf("list = %+v", list)
	}
	if csp := resp.Header.Get("Content-Security-Policy"); csp != "default-src 'none'" {
		t.Errorf("CSP = %q", csp)
	}
}

func TestRouterRejectsLargeJSON(t *testing.T) {
	srv := newTestRouter(t)
	payload := `{"text":"` + strings.Repeat("a", MaxJSONBody) + `"}`
	resp, err := http.Post(srv.URL+"/rooms/geral/messages", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	body(t, resp)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestRouterRejectsFormPost(t *testing.T) {
	srv := newTestRouter(t)
	resp, err := http.Post(srv.URL+"/rooms/geral/messages", "text/plain", strings.NewReader("oi"))
	if err != nil {
		t.Fatal(err)
	}
	body(t, resp)
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", resp.StatusCode)
	}
}

func TestRouterUploadAndServe(t *testing.T) {
	srv := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("author", "bia")
	fw, err := mw.CreateFormFile("file", "hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("hello"))
	mw.Close()

	resp, err := http.Post(srv.URL+"/rooms/geral/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	var msg handlers.MessageResponse
	if err := json.Unmarshal([]byte(body(t, resp)), &msg); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated || msg.URL == "" {
		t.Fatalf("status = %d, msg = %+v", resp.StatusCode, msg)
	}

	resp, err = http.Get(srv.URL + msg.URL)
	if err != nil {
		t.Fatal(err)
	}
	if got := body(t, resp); got != "hello" {
		t.Errorf("uploaded content = %q", got)
	}
	if csp := resp.Header.Get("Content-Security-Policy"); !strings.Contains(csp, "sandbox") {
		t.Errorf("upload CSP = %q", csp)
	}
}

func TestRouterMetricsAndCORS(t *testing.T) {
	srv := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body(t, resp)

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	if got := body(t, resp); !strings.Contains(got, "roomlog_http_requests_total") {
		t.Error("metrics output lacks roomlog_http_requests_total")
	}

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/rooms/geral/messages", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body(t, resp)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
