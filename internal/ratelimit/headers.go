package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderStrategy   = "X-RateLimit-Strategy"
	HeaderTier       = "X-RateLimit-Tier"
	HeaderRetryAfter = "Retry-After"
)

// BuildHeaders renders the response headers describing res.
// Retry-After is present only when the request was rejected.
func BuildHeaders(res Result) map[string]string {
	headers := map[string]string{
		HeaderLimit:     strconv.Itoa(res.Limit),
		HeaderRemaining: strconv.Itoa(res.Remaining),
		HeaderReset:     strconv.FormatInt(resetSeconds(res.ResetTime), 10),
	}
	if res.Strategy != "" {
		headers[HeaderStrategy] = string(res.Strategy)
	}
	if res.Tier != "" {
		headers[HeaderTier] = string(res.Tier)
	}
	if !res.Allowed {
		retry := res.RetryAfter
		if retry < 1 {
			retry = 1
		}
		headers[HeaderRetryAfter] = strconv.Itoa(retry)
	}
	return headers
}

// ApplyHeaders writes the headers of res onto h
func ApplyHeaders(h http.Header, res Result) {
	for k, v := range BuildHeaders(res) {
		h.Set(k, v)
	}
}

// resetSeconds rounds t up to whole unix seconds
func resetSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	secs := t.Unix()
	if t.Nanosecond() > 0 {
		secs++
	}
	return secs
}
