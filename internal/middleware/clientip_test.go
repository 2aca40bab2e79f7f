package middleware

import (
	"net/http/httptest"
	"testing"
)

func TestParseTrustedProxyCIDRs(t *testing.T) {
	prefixes, err := ParseTrustedProxyCIDRs(" 10.0.0.0/8, ,192.168.0.0/16 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(prefixes) != 2 {
		t.Fatalf("expected 2 prefixes, got %d", len(prefixes))
	}

	if p, err := ParseTrustedProxyCIDRs(""); err != nil || p != nil {
		t.Fatalf("expected empty result, got %v %v", p, err)
	}
	if _, err := ParseTrustedProxyCIDRs("10.0.0.0/8,not-a-cidr"); err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
}

func TestClientIP(t *testing.T) {
	trusted, _ := ParseTrustedProxyCIDRs("10.0.0.0/8")

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"untrusted peer", "203.0.113.5:1000", "1.2.3.4", "", "203.0.113.5"},
		{"trusted peer uses first XFF", "10.0.0.2:1000", "1.2.3.4, 10.0.0.9", "", "1.2.3.4"},
		{"trusted peer skips junk XFF", "10.0.0.2:1000", "garbage, 5.6.7.8", "", "5.6.7.8"},
		{"trusted peer falls back to X-Real-IP", "10.0.0.2:1000", "", "9.9.9.9", "9.9.9.9"},
		{"trusted peer without headers", "10.0.0.2:1000", "", "", "10.0.0.2"},
		{"ipv6 remote", "[2001:db8::1]:443", "", "", "2001:db8::1"},
		{"unparseable remote", "pipe", "", "", "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(r, trusted); got != tt.want {
				t.Fatalf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
