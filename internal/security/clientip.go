package security

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// UnknownIP is returned when no candidate address parses.
const UnknownIP = "unknown"

const maxIPLength = 45

// ipHeaders are consulted in order before the connection's remote address.
var ipHeaders = []string{
	"Client-IP",
	"X-Forwarded-For",
	"X-Forwarded",
	"X-Cluster-Client-IP",
	"Forwarded-For",
	"Forwarded",
}

// ClientIP returns the best-effort client address of r. For list-valued
// headers only the first entry counts; the result is at most 45 characters.
func ClientIP(r *http.Request) string {
	for _, h := range ipHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		if ip, ok := parseIP(v); ok {
			return ip
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if ip, ok := parseIP(host); ok {
		return ip
	}
	return UnknownIP
}

func parseIP(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if _, err := netip.ParseAddr(s); err != nil {
		return "", false
	}
	if len(s) > maxIPLength {
		s = s[:maxIPLength]
	}
	return s, true
}
