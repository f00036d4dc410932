// Package middleware turns admission decisions into HTTP responses for
// request handlers that guard endpoints with the engine.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"bastion/internal/admission/models"
)

// Admitter is the slice of the engine the middleware consumes.
type Admitter interface {
	Check(ctx context.Context, class models.EndpointClass, identity string) (*models.Decision, error)
}

type Middleware struct {
	admitter Admitter
	logger   *slog.Logger
}

func New(admitter Admitter, logger *slog.Logger) *Middleware {
	return &Middleware{
		admitter: admitter,
		logger:   logger,
	}
}

// Admit enforces the class's admission policy on every request, keyed by
// the client identity. Engine errors fail open: admission protects against
// abuse, it must not take endpoints down.
func (m *Middleware) Admit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := ClientIdentity(r)

			decision, err := m.admitter.Check(r.Context(), class, identity)
			if err != nil {
				m.logger.Error("admission check failed",
					"error", err,
					"endpoint_class", class,
				)
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				writeDenied(w, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIdentity resolves the requester identity: the first value of
// X-Forwarded-For, else X-Real-IP, else "unknown". The engine treats
// "unknown" as an ordinary identity subject to the same limits.
func ClientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	return "unknown"
}

func writeDenied(w http.ResponseWriter, d *models.Decision) {
	w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":       "too_many_attempts",
		"message":     d.Reason,
		"retry_after": d.RetryAfter,
	})
}
