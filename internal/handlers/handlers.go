// Package handlers exposes the rate limit engine over HTTP: an admission
// endpoint for gateways and an admin API for policies, records and stats.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"rate-limiter/internal/common/errors"
	"rate-limiter/internal/common/logging"
	"rate-limiter/internal/ratelimit"
)

// HealthChecker is implemented by durable stores that can be pinged
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Handlers struct {
	engine  *ratelimit.Engine
	userID  ratelimit.UserIDFunc
	durable HealthChecker
	logger  logging.Logger
	started time.Time
}

// New creates the HTTP handlers. userID resolves the user of admission requests
// that carry no user_id query parameter; durable may be nil.
func New(engine *ratelimit.Engine, userID ratelimit.UserIDFunc, durable HealthChecker) *Handlers {
	if userID == nil {
		userID = ratelimit.HeaderUserID("X-User-ID")
	}
	return &Handlers{
		engine:  engine,
		userID:  userID,
		durable: durable,
		logger:  logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "handlers"}),
		started: time.Now(),
	}
}

func (h *Handlers) sendJSONResponse(w http.ResponseWriter, data interface{}) {
	h.sendJSONStatus(w, http.StatusOK, data)
}

func (h *Handlers) sendJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

// sendJSONError logs logMsg with err when status is a server error and answers userMsg
func (h *Handlers) sendJSONError(w http.ResponseWriter, err error, logMsg, userMsg string, status int) {
	if status >= http.StatusInternalServerError {
		h.logger.Error(logMsg, err)
	}
	h.sendJSONStatus(w, status, map[string]string{"error": userMsg})
}

// sendAppError maps an AppError type to its HTTP status
func (h *Handlers) sendAppError(w http.ResponseWriter, err error, logMsg string) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch errors.GetType(err) {
	case errors.ErrTypeValidation, errors.ErrTypeConfig:
		status, msg = http.StatusBadRequest, err.Error()
	case errors.ErrTypeNotFound:
		status, msg = http.StatusNotFound, err.Error()
	case errors.ErrTypeUnavailable:
		status, msg = http.StatusServiceUnavailable, "service unavailable"
	}
	h.sendJSONError(w, err, logMsg, msg, status)
}

// HealthCheck reports liveness and, when a durable store is configured, its reachability.
// A failing durable store degrades the status but keeps 200: admission does not depend on it.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	result := map[string]interface{}{
		"status":   "healthy",
		"uptime_s": int64(time.Since(h.started).Seconds()),
		"policies": h.engine.Registry().Len(),
	}

	if h.durable != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.durable.Health(ctx); err != nil {
			result["status"] = "degraded"
			result["durable_store"] = err.Error()
		} else {
			result["durable_store"] = "ok"
		}
	}

	h.sendJSONResponse(w, result)
}
