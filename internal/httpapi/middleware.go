package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/ridepool/internal/observability"
)

type ctxKey int

const requestIDCtxKey ctxKey = iota

// Correlation headers. The SMS provider stamps an idempotency token on
// every webhook attempt, so retried deliveries of the same message
// share one id.
const (
	headerIdempotencyToken = "I-Twilio-Idempotency-Token"
	headerRequestID        = "X-Request-ID"
)

func (s *Server) registerMiddleware() {
	s.mux.Use(s.withRecovery)
	s.mux.Use(s.withRequestID)
	s.mux.Use(s.withTelemetry)
}

// withRequestID assigns each request a correlation id, preferring the
// provider's idempotency token so webhook retries collapse to one id
// in the logs. The id is echoed on the response for cross-referencing
// with the provider's delivery logs.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerIdempotencyToken)
		if id == "" {
			id = r.Header.Get(headerRequestID)
		}
		if id == "" {
			id = newID()
		}
		w.Header().Set(headerRequestID, id)
		ctx := context.WithValue(r.Context(), requestIDCtxKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withTelemetry records request metrics and one summary log line per
// request, tagged with the correlation id.
func (s *Server) withTelemetry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := routePattern(r)
		code := strconv.Itoa(rec.status)

		observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, route, code).Observe(elapsed.Seconds())

		s.logger.Info("request served",
			"request_id", requestID(r.Context()),
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", elapsed.Milliseconds(),
			"client", clientAddr(r),
		)
	})
}

// withRecovery turns a handler panic into a 500 instead of tearing
// down the webhook listener mid-conversation.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("panic recovered", "panic", v, "path", r.URL.Path)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status and body size for telemetry.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

func routePattern(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// clientAddr is the originating address, honoring the proxy header the
// provider's deliveries arrive behind.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
