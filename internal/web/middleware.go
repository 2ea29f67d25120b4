package web

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/navikt/liveroom/internal/utils"
)

// HTTPProtocolMiddleware prevents HTTP/3 QUIC protocol issues in cloud environments.
// Browsers attempting HTTP/3 behind some proxies drop long-lived event streams
// with net::ERR_QUIC_PROTOCOL_ERROR.
func HTTPProtocolMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Alt-Svc", "clear")

		if strings.HasPrefix(r.URL.Path, "/events") {
			// Force HTTP/1.1 semantics for SSE
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Force-HTTP1", "true")
			w.Header().Set("Upgrade", "")
		}

		next.ServeHTTP(w, r)
	})
}

// SecurityHeadersMiddleware sets headers every page response carries
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Flush keeps event streams working through the recorder
func (s *statusRecorder) Flush() {
	if flusher, ok := s.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// RequestLogMiddleware logs each request once it completes
func RequestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if strings.HasPrefix(r.URL.Path, "/static/") || strings.HasPrefix(r.URL.Path, "/health/") {
			return
		}
		log.Printf("%s %s %d %s", r.Method, utils.SanitizeLogString(r.URL.Path), rec.status, time.Since(start).Round(time.Millisecond))
	})
}

// WrapMuxWithMiddleware wraps an HTTP mux with the protocol, security and logging middleware
func WrapMuxWithMiddleware(mux *http.ServeMux) http.Handler {
	return RequestLogMiddleware(SecurityHeadersMiddleware(HTTPProtocolMiddleware(mux)))
}
