package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomlog/internal/metrics"
)

// ClientSource returns the shared Redis client, or false while the
// distributed store is unavailable. store.Manager.RedisClient fits.
type ClientSource func() (redis.UniversalClient, bool)

// RateLimit defines limits for an endpoint.
type RateLimit struct {
	Name     string // metrics label
	Method   string
	Prefix   string
	Suffix   string
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

func (l RateLimit) matches(r *http.Request) bool {
	return r.Method == l.Method &&
		strings.HasPrefix(r.URL.Path, l.Prefix) &&
		strings.HasSuffix(r.URL.Path, l.Suffix)
}

// DefaultLimits are checked in order; the first match applies.
var DefaultLimits = []RateLimit{
	{"upload", http.MethodPost, "/rooms/", "/upload", 20, time.Minute, ipKey},
	{"post_message", http.MethodPost, "/rooms/", "/messages", 60, time.Minute, ipKey},
	{"list_messages", http.MethodGet, "/rooms/", "/messages", 240, time.Minute, ipKey},
	{"list_rooms", http.MethodGet, "/rooms", "", 60, time.Minute, ipKey},
	{"stats", http.MethodGet, "/stats", "", 60, time.Minute, ipKey},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string    // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool        // Enable auto-blocking after repeated violations
	Limits           []RateLimit // DefaultLimits when empty
}

// RateLimiter implements fixed window rate limiting on Redis sorted sets.
// Requests pass unchecked while no client is available.
type RateLimiter struct {
	source           ClientSource
	limits           []RateLimit
	blocker          *IPBlocker
	logger           zerolog.Logger
	whitelist        []*net.IPNet
	whitelistIPs     map[string]bool
	autoBlockEnabled bool
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(source ClientSource, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		source:           source,
		limits:           cfg.Limits,
		blocker:          NewIPBlocker(source),
		logger:           logger,
		whitelistIPs:     make(map[string]bool),
		autoBlockEnabled: cfg.AutoBlockEnabled,
	}
	if len(rl.limits) == 0 {
		rl.limits = DefaultLimits
	}

	// Parse whitelist entries
	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			// CIDR notation
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			// Single IP
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

// isWhitelisted checks if an IP is in the whitelist.
func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	// Check exact IP match
	if rl.whitelistIPs[ipStr] {
		return true
	}

	// Check CIDR ranges
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ipKey returns rate limit key based on client IP.
func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	// Check Fly.io header first
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	// Then X-Forwarded-For
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	// Then X-Real-IP
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	// Fallback to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// CheckAndIncrement checks the rate limit and records the request.
// Returns (allowed, remaining, resetAt, err); on error the request is allowed.
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, client redis.UniversalClient, key string, limit int, window time.Duration) (bool, int, time.Time, error) {
	now := time.Now()
	windowStart := now.Add(-window)

	// Use a fixed window key based on current time bucket
	bucket := now.UnixMilli() / window.Milliseconds()
	windowKey := fmt.Sprintf("%s:%d", key, bucket)
	resetAt := time.UnixMilli((bucket + 1) * window.Milliseconds())

	pipe := client.Pipeline()

	// Remove old entries outside window
	pipe.ZRemRangeByScore(ctx, windowKey, "-inf", strconv.FormatInt(windowStart.UnixMilli(), 10))

	// Count current entries
	countCmd := pipe.ZCard(ctx, windowKey)

	// Add current request with unique member
	pipe.ZAdd(ctx, windowKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})

	// Set TTL on key
	pipe.Expire(ctx, windowKey, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return true, limit, resetAt, err
	}

	count := countCmd.Val()
	remaining := limit - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}

	return count < int64(limit), remaining, resetAt, nil
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)

		// Skip rate limiting for whitelisted IPs
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		client, ok := rl.source()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		// Check IP block first
		if rl.blocker.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			http.Error(w, `{"error":"temporarily blocked"}`, http.StatusForbidden)
			return
		}

		// Find matching limit
		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		allowed, remaining, resetAt, err := rl.CheckAndIncrement(r.Context(), client, key, limit.Requests, limit.Window)
		if err != nil {
			rl.logger.Debug().Err(err).Str("key", key).Msg("rate limit check skipped")
			next.ServeHTTP(w, r)
			return
		}

		// Set rate limit headers
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retry := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))

			metrics.RateLimitHits.WithLabelValues(limit.Name).Inc()

			// Track violation
			rl.trackViolation(r.Context(), client, ip)

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit finds the first rate limit matching a request.
func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	for i := range rl.limits {
		if rl.limits[i].matches(r) {
			l := rl.limits[i]
			return &l
		}
	}
	return nil
}

// trackViolation tracks rate limit violations and auto-blocks repeat offenders.
func (rl *RateLimiter) trackViolation(ctx context.Context, client redis.UniversalClient, ip string) {
	if !rl.autoBlockEnabled {
		return
	}

	key := fmt.Sprintf("violations:ip:%s", ip)
	count, _ := client.Incr(ctx, key).Result()
	client.Expire(ctx, key, time.Hour)

	if count >= 10 {
		rl.blocker.Block(ctx, ip, 24*time.Hour, "repeated rate limit violations")
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Msg("IP auto-blocked for repeated violations")
	}
}

// IPBlocker manages temporary IP blocks.
type IPBlocker struct {
	source ClientSource
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(source ClientSource) *IPBlocker {
	return &IPBlocker{source: source}
}

// IsBlocked checks if an IP is blocked. Nothing is blocked while the
// store is unavailable.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	client, ok := b.source()
	if !ok {
		return false
	}
	exists, _ := client.Exists(ctx, blockKey(ip)).Result()
	return exists > 0
}

// Block blocks an IP for the specified duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	if client, ok := b.source(); ok {
		client.Set(ctx, blockKey(ip), reason, duration)
	}
}

// Unblock removes an IP block.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) {
	if client, ok := b.source(); ok {
		client.Del(ctx, blockKey(ip))
	}
}

func blockKey(ip string) string {
	return "blocked:ip:" + ip
}
