package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name              string
		remoteAddr        string
		xForwardedFor     string
		xRealIP           string
		trustProxy        bool
		trustedProxyCount int
		want              string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:51234",
			want:       "203.0.113.7",
		},
		{
			name:          "untrusted proxy headers ignored",
			remoteAddr:    "203.0.113.7:51234",
			xForwardedFor: "10.0.0.1",
			want:          "203.0.113.7",
		},
		{
			name:          "trusted single proxy",
			remoteAddr:    "10.0.0.1:443",
			xForwardedFor: "198.51.100.4, 10.0.0.1",
			trustProxy:    true,
			want:          "198.51.100.4",
		},
		{
			name:              "trusted proxy chain",
			remoteAddr:        "10.0.0.1:443",
			xForwardedFor:     "198.51.100.4, 10.0.0.2, 10.0.0.1",
			trustProxy:        true,
			trustedProxyCount: 2,
			want:              "198.51.100.4",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:443",
			xRealIP:    "198.51.100.4",
			trustProxy: true,
			want:       "198.51.100.4",
		},
		{
			name:          "invalid forwarded ip falls through",
			remoteAddr:    "10.0.0.1:443",
			xForwardedFor: "not-an-ip",
			trustProxy:    true,
			want:          "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				r.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := GetClientIP(r, tt.trustProxy, tt.trustedProxyCount); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	id := GenerateRequestID()
	if len(id) != 22 {
		t.Errorf("GenerateRequestID() length = %d, want 22", len(id))
	}
	if !ValidRequestID(id) {
		t.Errorf("ValidRequestID(%q) = false, want true", id)
	}
	if id2 := GenerateRequestID(); id2 == id {
		t.Error("GenerateRequestID() returned identical IDs")
	}

	if ValidRequestID("evil\r\nheader: injected") {
		t.Error("ValidRequestID() accepted CRLF injection")
	}
	if ValidRequestID("") {
		t.Error("ValidRequestID() accepted empty ID")
	}

	ctx := WithRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context(), id)
	if got := GetRequestID(ctx); got != id {
		t.Errorf("GetRequestID() = %q, want %q", got, id)
	}
}
