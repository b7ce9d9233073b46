package handlers

import (
	"net/http"

	"rate-limiter/internal/common/logging"
	"rate-limiter/internal/ratelimit"
)

// GetStats returns engine statistics
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.sendJSONResponse(w, h.engine.GetStats())
}

func ratelimitFields(cfg ratelimit.RateLimitConfig) []logging.Field {
	return []logging.Field{
		{Key: "policy", Value: cfg.Key},
		{Key: "strategy", Value: string(cfg.Strategy)},
		{Key: "tier", Value: string(cfg.Tier)},
		{Key: "limit", Value: cfg.Limit},
		{Key: "window", Value: cfg.Window.String()},
		{Key: "enabled", Value: cfg.Enabled},
	}
}
