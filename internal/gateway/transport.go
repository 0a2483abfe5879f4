package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// buildTransport returns the outbound http.Transport used for all backend
// calls. Construction mirrors the teacher's proxy transport (connection
// pooling, HTTP/2, generous idle timeouts) but dials through
// ssrfSafeDialContext and targets a single configured backend rather than
// an arbitrary CONNECT destination.
func buildTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		DialContext:           ssrfSafeDialContext(dialer),
		MaxIdleConns:          200,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// ssrfSafeDialContext wraps a *net.Dialer so that literal private/loopback/
// link-local IP addresses are refused before a connection is attempted.
// Hostnames are allowed to resolve normally — this is intentionally a
// defense against operators misconfiguring a backend base URL to a literal
// internal address, not a DNS-rebinding-proof sandbox.
func ssrfSafeDialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if isPrivateHost(addr) {
			return nil, fmt.Errorf("gateway: refusing to dial private address %q", addr)
		}
		return dialer.DialContext(ctx, network, addr)
	}
}

// isPrivateHost reports whether addr (host:port, or a bare host) is a
// literal IP address in a private/loopback/link-local range. Non-IP
// hostnames are never resolved here (resolving them to check would be a
// TOCTOU race against the real dial) and are reported as not private.
func isPrivateHost(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return isPrivateIP(ip)
}

// isPrivateIP reports whether ip falls in a private, loopback, or
// link-local range (IPv4 or IPv6).
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsPrivate() {
		return true
	}
	return false
}
