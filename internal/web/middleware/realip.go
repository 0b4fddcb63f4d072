package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// TrustedRealIP rewrites RemoteAddr from X-Real-IP or X-Forwarded-For, but
// only for connections arriving from a configured proxy network. Anything
// else keeps the socket address, so clients outside the proxy tier cannot
// spoof their way past the per-IP rate limit or falsify ingest request logs.
//
// trusted entries are CIDRs or single IPs (TRUSTED_PROXIES). With none
// configured the middleware is a pass-through, which suits direct deployment
// without a reverse proxy in front.
func TrustedRealIP(trusted []string) func(http.Handler) http.Handler {
	nets := parseTrustedNets(trusted)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer := peerIP(r.RemoteAddr)
			if fromTrustedProxy(peer, nets) {
				if ip := forwardedClientIP(r); ip != nil {
					r.RemoteAddr = ip.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseTrustedNets parses the proxy allow-list once at startup. Entries that
// parse as neither CIDR nor IP are skipped with a warning rather than
// failing startup.
func parseTrustedNets(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if _, network, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, network)
			continue
		}

		// Bare IP: treat as a /32 (or /128) network.
		if ip := net.ParseIP(entry); ip != nil {
			mask := net.CIDRMask(128, 128)
			if ip.To4() != nil {
				mask = net.CIDRMask(32, 32)
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: mask})
			continue
		}

		slog.Warn("realip: skipping unparseable trusted proxy entry", "entry", entry)
	}
	return nets
}

// forwardedClientIP extracts the client IP a trusted proxy reported.
// X-Real-IP wins over X-Forwarded-For; in a forwarded chain the first hop is
// the original client. Unparseable header values are ignored.
func forwardedClientIP(r *http.Request) net.IP {
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return net.ParseIP(strings.TrimSpace(rip))
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return nil
	}
	first := xff
	if idx := strings.Index(xff, ","); idx > 0 {
		first = xff[:idx]
	}
	return net.ParseIP(strings.TrimSpace(first))
}

// peerIP parses the IP of the immediate connection, accepting both
// "host:port" and bare-IP forms.
func peerIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}

// fromTrustedProxy reports whether ip falls inside any trusted network.
func fromTrustedProxy(ip net.IP, nets []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, network := range nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
