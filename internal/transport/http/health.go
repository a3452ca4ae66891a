package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger is a dependency the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Health struct {
	checks map[string]Pinger
	logger *zap.Logger
}

// NewHealth pings every named dependency; an empty set always reports ok.
func NewHealth(checks map[string]Pinger, logger *zap.Logger) *Health {
	return &Health{checks: checks, logger: logger}
}

type checkResult struct {
	Status string `json:"status"`
}

func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	result := map[string]checkResult{}
	status := http.StatusOK
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			result[name] = checkResult{Status: "error"}
			status = http.StatusServiceUnavailable
			continue
		}
		result[name] = checkResult{Status: "ok"}
	}
	writeJSON(w, status, result)
}
