package ratelimit

import (
	"net/http"
	"net/textproto"
	"strings"
)

const (
	// UnknownIdentifier pools every request that carries no client address headers
	UnknownIdentifier = "unknown"
	// GlobalIdentifier is the single bucket shared by a global-tier policy
	GlobalIdentifier = "global"
)

// RequestLike is the part of a request identifier resolution reads
type RequestLike interface {
	Header(name string) string
	Path() string
}

type httpRequest struct {
	r *http.Request
}

// HTTPRequest adapts an *http.Request
func HTTPRequest(r *http.Request) RequestLike {
	return httpRequest{r: r}
}

func (h httpRequest) Header(name string) string {
	if h.r == nil {
		return ""
	}
	return h.r.Header.Get(name)
}

func (h httpRequest) Path() string {
	if h.r == nil || h.r.URL == nil {
		return ""
	}
	return h.r.URL.Path
}

// Request is a plain RequestLike for callers without an *http.Request.
// Header lookup ignores case.
type Request struct {
	Headers map[string]string
	URLPath string
}

func (r Request) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	if v, ok := r.Headers[textproto.CanonicalMIMEHeaderKey(name)]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func (r Request) Path() string {
	return r.URLPath
}

// ClientIP reads the client address from proxy headers, in order:
// first X-Forwarded-For entry, X-Real-IP, CF-Connecting-IP. It never fails;
// with no usable header it returns "unknown".
func ClientIP(req RequestLike) string {
	if req == nil {
		return UnknownIdentifier
	}
	if xff := req.Header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(req.Header("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(req.Header("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return UnknownIdentifier
}

// ResolveIdentifier maps a request to the identifier a policy of the given tier counts against.
// User and API key tiers fall back to the client IP when their signal is absent.
func ResolveIdentifier(req RequestLike, tier Tier, userID string) string {
	switch tier {
	case TierGlobal:
		return GlobalIdentifier
	case TierUser:
		if userID != "" {
			return userID
		}
		return ClientIP(req)
	case TierAPIKey:
		if req != nil {
			if key := strings.TrimSpace(req.Header("x-api-key")); key != "" {
				return key
			}
		}
		return ClientIP(req)
	case TierEndpoint:
		path := ""
		if req != nil {
			path = req.Path()
		}
		return ClientIP(req) + ":" + path
	default:
		return ClientIP(req)
	}
}
