package util

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// responseMeter records the status and body size a handler wrote.
type responseMeter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (m *responseMeter) WriteHeader(code int) {
	if m.status == 0 {
		m.status = code
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *responseMeter) Write(p []byte) (int, error) {
	if m.status == 0 {
		m.status = http.StatusOK
	}
	n, err := m.ResponseWriter.Write(p)
	m.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (m *responseMeter) Unwrap() http.ResponseWriter {
	return m.ResponseWriter
}

// WithRequestLog writes one "http_request" line per request, at warn for
// 5xx responses. The matched ServeMux pattern is logged as route when the
// request reached a registered handler.
func WithRequestLog(service string, next http.Handler) http.Handler {
	service = strings.TrimSpace(service)
	if service == "" {
		service = "unknown"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		meter := &responseMeter{ResponseWriter: w}
		next.ServeHTTP(meter, r)

		status := meter.status
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		attrs := []any{
			"service", service,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", meter.written,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if r.Pattern != "" {
			attrs = append(attrs, "route", r.Pattern)
		}
		LoggerFromContext(r.Context()).Log(r.Context(), level, "http_request", attrs...)
	})
}
