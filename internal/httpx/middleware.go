package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/observability/metrics"
	"github.com/dropDatabas3/authkit/internal/rate"
)

// requestIDMiddleware assigns each request an id and threads a request-scoped
// logger through the context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		log := logger.L().With(logger.RequestID(id))
		next.ServeHTTP(w, r.WithContext(logger.ToContext(r.Context(), log)))
	})
}

// loggingMiddleware records one line per request with latency and status, and
// feeds the prometheus counters.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = r.URL.Path
		}

		logger.From(r.Context()).Info("request",
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(ww.Status()),
			logger.Duration(elapsed),
			logger.ClientIP(clientIP(r)),
		)
		metrics.HTTPRequestsTotal.WithLabelValues(
			routePattern, r.Method, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(routePattern).Observe(elapsed.Seconds())
	})
}

// recoverMiddleware converts panics into 500s instead of dropped connections.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.From(r.Context()).Error("handler panicked", logger.Any("panic", rec))
				apperr.WriteError(w, apperr.Internal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware buckets by client IP.
func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(r.Context(), clientIP(r)) {
				w.Header().Set("Retry-After", "60")
				apperr.WriteError(w, apperr.ResourceExhausted)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// bearerToken pulls the token out of the Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
