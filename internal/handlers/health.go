package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/eldtechnologies/roomlog/internal/store"
)

const version = "0.2.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass", "warn" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"` // "healthy", "degraded" or "unhealthy"
	Version   string            `json:"version"`
	Instance  string            `json:"instance,omitempty"`
	Storage   *store.FileHealth `json:"storage,omitempty"`
	Checks    map[string]Check  `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles the health check endpoint. Only the fallback file is
// required; a missing distributed store or room index degrades the status
// without failing the check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	status := "healthy"
	statusCode := http.StatusOK
	degrade := func() {
		if status == "healthy" {
			status = "degraded"
		}
	}

	// Fallback file store
	var storage *store.FileHealth
	fileStart := time.Now()
	if fh, err := h.files.Health(ctx); err != nil {
		checks["file"] = Check{Status: "fail", Message: "file store unreadable"}
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	} else {
		storage = &fh
		checks["file"] = Check{Status: "pass", Latency: time.Since(fileStart).String()}
	}

	// Distributed store
	if h.manager != nil {
		backendStart := time.Now()
		b, err := h.manager.Backend(ctx)
		if err == nil {
			err = b.Ping(ctx)
		}
		if err != nil {
			checks["backend"] = Check{Status: "warn", Message: h.manager.State().String()}
			degrade()
		} else {
			checks["backend"] = Check{Status: "pass", Latency: time.Since(backendStart).String(), Message: b.Name()}
		}
	} else {
		checks["backend"] = Check{Status: "warn", Message: "disabled"}
		degrade()
	}

	// Room index
	if h.rooms != nil {
		idxStart := time.Now()
		if err := h.rooms.Ping(ctx); err != nil {
			checks["room_index"] = Check{Status: "warn", Message: "connection failed"}
			degrade()
		} else {
			checks["room_index"] = Check{Status: "pass", Latency: time.Since(idxStart).String()}
		}
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Instance:  os.Getenv("HOSTNAME"),
		Storage:   storage,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RootResponse represents the API info response.
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Root handles the API info endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "roomlog",
		Version: version,
	})
}
