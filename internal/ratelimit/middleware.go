package ratelimit

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UserIDFunc extracts the authenticated user of a request, or "" for anonymous ones
type UserIDFunc func(r *http.Request) string

// HeaderUserID reads the user id set by an upstream authenticator
func HeaderUserID(header string) UserIDFunc {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(header))
	}
}

// JWTUserID reads the subject of an HS256 bearer token signed with secret.
// Invalid or missing tokens yield "", so the user tier falls back to the client IP.
func JWTUserID(secret []byte) UserIDFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return func(r *http.Request) string {
		auth := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || raw == "" {
			return ""
		}
		token, err := parser.Parse(strings.TrimSpace(raw), func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			return ""
		}
		sub, err := token.Claims.GetSubject()
		if err != nil {
			return ""
		}
		return sub
	}
}

// MiddlewareOptions tunes Middleware
type MiddlewareOptions struct {
	// UserID defaults to the X-User-ID header
	UserID UserIDFunc
	// Weight defaults to one unit per request
	Weight func(r *http.Request) int
}

type rejection struct {
	Error      string `json:"error"`
	Policy     string `json:"policy"`
	RetryAfter int    `json:"retry_after"`
	ResetTime  int64  `json:"reset_time"`
}

// Middleware admits each request under policyKey and answers 429 when the policy rejects it
func Middleware(engine *Engine, policyKey string, opts MiddlewareOptions) func(http.Handler) http.Handler {
	userID := opts.UserID
	if userID == nil {
		userID = HeaderUserID("X-User-ID")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			weight := 1
			if opts.Weight != nil {
				weight = opts.Weight(r)
			}

			res := engine.CheckRequest(policyKey, HTTPRequest(r), userID(r), weight)
			ApplyHeaders(w.Header(), res)

			if !res.Allowed {
				WriteRejection(w, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteRejection writes a 429 JSON body for res. Headers must already be applied.
func WriteRejection(w http.ResponseWriter, res Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(rejection{
		Error:      "rate limit exceeded",
		Policy:     res.Policy,
		RetryAfter: res.RetryAfter,
		ResetTime:  res.ResetTimeMillis(),
	})
}
