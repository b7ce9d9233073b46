package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"rate-limiter/internal/ratelimit"
)

// Admit evaluates one admission for a gateway sub-request. The identifier is
// resolved from the forwarded headers of this request through the policy tier.
//
// Query parameters: weight (default 1), user_id (overrides the configured user resolver).
// Answers 200 with the result when admitted, 429 when rejected.
func (h *Handlers) Admit(w http.ResponseWriter, r *http.Request) {
	policy := mux.Vars(r)["policy"]

	weight := 1
	if raw := r.URL.Query().Get("weight"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.sendJSONError(w, nil, "Invalid weight", "weight must be a positive integer", http.StatusBadRequest)
			return
		}
		weight = n
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = h.userID(r)
	}

	res := h.engine.CheckRequest(policy, ratelimit.HTTPRequest(r), userID, weight)
	ratelimit.ApplyHeaders(w.Header(), res)

	status := http.StatusOK
	if !res.Allowed {
		status = http.StatusTooManyRequests
	}
	h.sendJSONStatus(w, status, res)
}
