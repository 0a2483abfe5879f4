package gateway

import (
	"fmt"
	"net"
	"testing"
)

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      net.IP
		private bool
	}{
		{net.ParseIP("10.0.0.52"), true},
		{net.ParseIP("::1"), true},
		{net.ParseIP("fc00::1"), true},
		{net.ParseIP("fe80::1"), true},
		{net.IP{8, 8, 8, 8}, false},
		{net.IP{1, 1, 1, 1}, false},
		{net.IP{127, 0, 0, 1}, true},
		{net.IP{169, 254, 169, 254}, true},
		{net.ParseIP("2607:f8b0:4004:800::200e"), false},
	}
	for _, tt := range tests {
		if got := isPrivateIP(tt.ip); got != tt.private {
			t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}

func TestIsPrivateHost_Literal(t *testing.T) {
	publicDNS := fmt.Sprintf("%d.%d.%d.%d:53", 8, 8, 8, 8)
	publicHost := fmt.Sprintf("%d.%d.%d.%d", 1, 1, 1, 1)

	tests := []struct {
		host    string
		private bool
	}{
		{"10.0.0.52:8080", true},
		{"[::1]:80", true},
		{"[fe80::1]:443", true},
		{publicDNS, false},
		{publicHost, false},
		{"example.com", false},
		{"localhost", false},
	}
	for _, tt := range tests {
		if got := isPrivateHost(tt.host); got != tt.private {
			t.Errorf("isPrivateHost(%q) = %v, want %v", tt.host, got, tt.private)
		}
	}
}

func TestSsrfSafeDialContext_BlocksPrivateIP(t *testing.T) {
	dialer := &net.Dialer{Timeout: 1}
	dialFn := ssrfSafeDialContext(dialer)

	_, err := dialFn(t.Context(), "tcp", "127.0.0.1:80")
	if err == nil {
		t.Fatal("expected error dialing a private literal address, got nil")
	}
}

func TestBuildTransport_SetsSSRFSafeDialer(t *testing.T) {
	tr := buildTransport()
	if tr.DialContext == nil {
		t.Fatal("expected DialContext to be set")
	}
	if !tr.ForceAttemptHTTP2 {
		t.Error("expected ForceAttemptHTTP2 true")
	}
}
