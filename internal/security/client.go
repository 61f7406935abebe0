package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the client address for a request. Proxy headers win
// over the socket address: first hop of X-Forwarded-For, then X-Real-IP,
// then the RemoteAddr host. "unknown" when nothing is usable.
func ClientIP(r *http.Request) string {
	if r == nil {
		return "unknown"
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := forwarded
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			first = forwarded[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		return addr
	}
	return "unknown"
}

// sessionKey extracts the session identifier cookie used to key CSRF
// tokens. Empty when the request carries no session.
func sessionKey(r *http.Request) string {
	if r == nil {
		return ""
	}
	cookie, err := r.Cookie("session-token")
	if err != nil {
		return ""
	}
	return cookie.Value
}
