package observability

import (
	"log/slog"
	"net/http"
	"strings"
)

// Audit writes a security-relevant event. Callers pass actor and target
// attributes as slog key/value pairs.
func Audit(r *http.Request, event, outcome string, attrs ...any) {
	base := []any{
		"event", event,
		"outcome", outcome,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get("X-Request-Id"),
		"remote_ip", clientIP(r),
	}
	base = append(base, attrs...)
	level := slog.LevelInfo
	if outcome != "success" {
		level = slog.LevelWarn
	}
	slog.Log(r.Context(), level, "audit", base...)
}

func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return strings.Trim(addr[:i], "[]")
	}
	return addr
}
