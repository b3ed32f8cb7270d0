package server

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/faktulove/ocrsync/internal/common"
	"github.com/faktulove/ocrsync/internal/metrics"
)

// IdentityResolver turns a bearer token into a user identity. The real
// auth backend lives outside this service; the seam is injected here.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (uuid.UUID, bool)
}

// StaticTokenResolver resolves identities from a fixed token table, the
// default wiring from config.
type StaticTokenResolver map[string]uuid.UUID

func (r StaticTokenResolver) Resolve(_ context.Context, token string) (uuid.UUID, bool) {
	id, ok := r[token]
	return id, ok
}

// NewStaticTokenResolver builds a resolver from the token -> user-id pairs
// in config, skipping unparseable entries.
func NewStaticTokenResolver(pairs map[string]string) StaticTokenResolver {
	out := make(StaticTokenResolver, len(pairs))
	for token, raw := range pairs {
		if id, err := uuid.Parse(raw); err == nil {
			out[token] = id
		}
	}
	return out
}

// RateLimiter is the injected limiting capability for the polling routes.
type RateLimiter interface {
	Allow(key string) bool
}

// IPRateLimiter keeps one token bucket per client key.
type IPRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	rateLimit rate.Limit
	burst     int
}

func NewIPRateLimiter(r rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{limiters: make(map[string]*rate.Limiter), rateLimit: r, burst: burst}
}

func (l *IPRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rateLimit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, s.logger, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		userID, ok := s.identity.Resolve(r.Context(), token)
		if !ok {
			writeError(w, s.logger, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), userID)))
	})
}

func (s *Server) authenticateWorker(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Worker-Token")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.workerToken)) != 1 {
			writeError(w, s.logger, http.StatusUnauthorized, "UNAUTHORIZED", "invalid worker token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
			writeError(w, s.logger, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) collectMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &metrics.StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}
		metrics.HTTPRequest(path, strconv.Itoa(rec.Status))
		metrics.ObserveHTTPDuration(path, time.Since(start).Seconds())
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
