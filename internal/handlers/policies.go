package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"rate-limiter/internal/ratelimit"
)

// maxPolicyBody bounds PUT bodies
const maxPolicyBody = 64 << 10

// GetPolicies lists every registered policy
func (h *Handlers) GetPolicies(w http.ResponseWriter, r *http.Request) {
	configs := h.engine.Configs()
	specs := make([]ratelimit.PolicySpec, 0, len(configs))
	for _, cfg := range configs {
		specs = append(specs, ratelimit.SpecFromConfig(cfg))
	}
	h.sendJSONResponse(w, specs)
}

func (h *Handlers) GetPolicy(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.engine.GetConfig(mux.Vars(r)["policy"])
	if err != nil {
		h.sendAppError(w, err, "Failed to get policy")
		return
	}
	h.sendJSONResponse(w, ratelimit.SpecFromConfig(cfg))
}

// PutPolicy creates or replaces the policy named in the path.
// A key in the body must match the path.
func (h *Handlers) PutPolicy(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["policy"]

	var spec ratelimit.PolicySpec
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPolicyBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		h.sendJSONError(w, err, "Invalid policy body", "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if spec.Key != "" && spec.Key != key {
		h.sendJSONError(w, nil, "Policy key mismatch", "policy key in body does not match the path", http.StatusBadRequest)
		return
	}
	spec.Key = key

	_, existed := h.lookup(key)
	if err := h.engine.SetConfig(spec.Config()); err != nil {
		h.sendAppError(w, err, "Failed to set policy")
		return
	}

	cfg, err := h.engine.GetConfig(key)
	if err != nil {
		h.sendAppError(w, err, "Failed to read back policy")
		return
	}

	h.logger.Info("Rate limit policy saved", ratelimitFields(cfg)...)

	status := http.StatusOK
	if !existed {
		status = http.StatusCreated
	}
	h.sendJSONStatus(w, status, ratelimit.SpecFromConfig(cfg))
}

// DeletePolicy removes the policy and its records
func (h *Handlers) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteConfig(r.Context(), mux.Vars(r)["policy"]); err != nil {
		h.sendAppError(w, err, "Failed to delete policy")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPolicyStatus shows one identifier's state without consuming anything
func (h *Handlers) GetPolicyStatus(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		h.sendJSONError(w, nil, "Missing identifier", "identifier query parameter is required", http.StatusBadRequest)
		return
	}

	status, err := h.engine.GetStatus(mux.Vars(r)["policy"], identifier)
	if err != nil {
		h.sendAppError(w, err, "Failed to get status")
		return
	}
	h.sendJSONResponse(w, status)
}

// ResetRecords clears one identifier, or every identifier when none is given
func (h *Handlers) ResetRecords(w http.ResponseWriter, r *http.Request) {
	policy := mux.Vars(r)["policy"]
	identifier := r.URL.Query().Get("identifier")

	removed, err := h.engine.Reset(r.Context(), policy, identifier)
	if err != nil {
		h.sendAppError(w, err, "Failed to reset records")
		return
	}
	h.sendJSONResponse(w, map[string]interface{}{
		"policy":     policy,
		"identifier": identifier,
		"removed":    removed,
	})
}

func (h *Handlers) lookup(key string) (ratelimit.RateLimitConfig, bool) {
	cfg, err := h.engine.GetConfig(key)
	return cfg, err == nil
}
