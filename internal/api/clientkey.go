package api

import (
	"net"
	"net/http"
	"strings"
)

// fallbackClientKey is used when no client address can be resolved at all.
// Throttling isolation degrades to a single shared window in that case,
// which is the accepted behavior for deployments without a trusted proxy.
const fallbackClientKey = "unknown"

// clientKey derives the throttling identifier for a request. With a trusted
// proxy in front, the first hop of X-Forwarded-For (or X-Real-IP) names the
// caller; otherwise the socket peer address does.
func clientKey(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
			if first != "" {
				return first
			}
		}
		if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
			return xr
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return fallbackClientKey
}
