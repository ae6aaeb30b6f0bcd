package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// ProxyList is a set of proxy networks whose forwarding headers are trusted.
type ProxyList []netip.Prefix

// ParseProxyList parses CIDRs or bare addresses. Invalid entries are logged
// and skipped.
func ParseProxyList(entries []string) ProxyList {
	var list ProxyList
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			list = append(list, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			slog.Warn("realip: invalid trusted proxy, skipping", "proxy", entry, "error", err)
			continue
		}
		addr = addr.Unmap()
		list = append(list, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return list
}

// Contains reports whether addr belongs to one of the proxy networks.
func (l ProxyList) Contains(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolve returns the client address of r. Forwarding headers count only
// when the connection comes from a trusted proxy; X-Real-IP wins over
// X-Forwarded-For, whose chain is walked right to left past trusted hops.
func (l ProxyList) Resolve(r *http.Request) netip.Addr {
	remote := parseAddr(r.RemoteAddr)
	if !l.Contains(remote) {
		return remote
	}

	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		if addr, err := netip.ParseAddr(rip); err == nil {
			return addr.Unmap()
		}
		return remote
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		if !l.Contains(addr) {
			return addr.Unmap()
		}
	}
	return remote
}

// TrustedRealIP records the resolved client address on the request context
// for ClientIP. Headers from untrusted peers are ignored so clients cannot
// spoof their address past the rate limiter.
func TrustedRealIP(trustedCIDRs []string) func(http.Handler) http.Handler {
	proxies := ParseProxyList(trustedCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if addr := proxies.Resolve(r); addr.IsValid() {
				r = r.WithContext(context.WithValue(r.Context(), clientIPKey{}, addr))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the client address resolved by TrustedRealIP, or the
// connection's address without the port.
func ClientIP(r *http.Request) string {
	if addr, ok := r.Context().Value(clientIPKey{}).(netip.Addr); ok {
		return addr.String()
	}
	if addr := parseAddr(r.RemoteAddr); addr.IsValid() {
		return addr.String()
	}
	return r.RemoteAddr
}

func parseAddr(s string) netip.Addr {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap()
	}
	addr, _ := netip.ParseAddr(s)
	return addr.Unmap()
}
