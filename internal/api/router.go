package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomlog/internal/api/middleware"
	"github.com/eldtechnologies/roomlog/internal/handlers"
)

// MaxJSONBody caps JSON request bodies.
const MaxJSONBody = 64 * 1024

// Options configures the router.
type Options struct {
	Handlers  handlers.Deps
	PublicDir string // chat page and assets served at /
	RateLimit middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting, skipped while the distributed store is down
	source := middleware.ClientSource(func() (redis.UniversalClient, bool) { return nil, false })
	if m := opts.Handlers.Manager; m != nil {
		source = m.RedisClient
	}
	limiter := middleware.NewRateLimiter(source, logger, opts.RateLimit)
	r.Use(limiter.Middleware)

	// CORS - allow all origins (chat clients call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(opts.Handlers)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// API
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/rooms", h.ListRooms)
	r.Get("/stats", h.Stats)
	r.Get("/rooms/{id}/messages", h.GetMessages)

	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(MaxJSONBody))
		r.Post("/rooms/{id}/messages", h.PostMessage)
	})

	r.Group(func(r chi.Router) {
		if limit := opts.Handlers.MaxUploadBytes; limit > 0 {
			r.Use(middleware.MaxBodySize(limit + 1<<20))
		}
		r.Post("/rooms/{id}/upload", h.Upload)
	})

	// Uploaded files and the chat page
	r.Method(http.MethodGet, "/uploads/*", http.StripPrefix("/uploads/", fileServer(opts.Handlers.UploadDir)))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		index := filepath.Join(opts.PublicDir, "index.html")
		if _, err := os.Stat(index); err != nil {
			h.Root(w, req)
			return
		}
		http.ServeFile(w, req, index)
	})
	r.Method(http.MethodGet, "/*", fileServer(opts.PublicDir))

	return r
}

// fileServer serves dir without directory listings.
func fileServer(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
