package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

type contextKey string

const claimsContextKey contextKey = "accessClaims"

// claimsHolder travels in the request context. Logging installs an empty one
// before routing; RequireRole runs on a derived request further down the
// chain and fills it after validation, so the logger still sees the identity
// even though it holds the outer request.
type claimsHolder struct {
	claims *AccessClaims
}

// claimsFrom returns the validated claims injected by RequireRole, or nil on
// an unguarded route.
func claimsFrom(r *http.Request) *AccessClaims {
	if h, ok := r.Context().Value(claimsContextKey).(*claimsHolder); ok {
		return h.claims
	}
	return nil
}

// RequireRole gates a route on a validated bearer token whose role is in the
// given set. An empty set admits any authenticated caller. The check is
// stateless: signature and validity window only, no store lookup.
func (a *App) RequireRole(roles ...Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeDomainError(w, ErrTokenInvalid)
				return
			}
			claims, err := a.Tokens.ParseAccess(strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				writeDomainError(w, err)
				return
			}
			if len(roles) > 0 && !claims.Role.In(roles...) {
				writeDomainError(w, ErrForbidden)
				return
			}
			if h, ok := r.Context().Value(claimsContextKey).(*claimsHolder); ok {
				h.claims = claims
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey, &claimsHolder{claims: claims})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CORS middleware handles CORS headers
func (a *App) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimiter implements per-client rate limiting on credential endpoints.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	perMin   int
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*rate.Limiter), perMin: perMinute}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		// Double-check after acquiring write lock
		limiter, exists = rl.limiters[key]
		if !exists {
			limiter = rate.NewLimiter(rate.Limit(rl.perMin)/60, rl.perMin)
			rl.limiters[key] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter
}

// RateLimit throttles token issuance per client address.
func (a *App) RateLimit(next http.Handler) http.Handler {
	if a.rateLimiter == nil {
		a.rateLimiter = NewRateLimiter(60)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			key = host
		}
		if !a.rateLimiter.getLimiter(key).Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Logging middleware logs requests
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		holder := &claimsHolder{}
		r = r.WithContext(context.WithValue(r.Context(), claimsContextKey, holder))

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		actor := "-"
		if holder.claims != nil {
			actor = holder.claims.Name
		}

		log.Printf("[%s] %s %s %d %v (actor: %s)", r.Method, r.URL.Path, r.RemoteAddr, wrapped.statusCode, duration, actor)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}
