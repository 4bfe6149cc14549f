package requests

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1"},
		{"forwarded first entry", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "203.0.113.7"},
		{"garbage forwarded", map[string]string{"X-Forwarded-For": "not-an-ip", "X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"garbage everywhere", map[string]string{"X-Forwarded-For": "x", "X-Real-IP": "y"}, "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/downloads/t", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFullURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://internal:8080/jobs/abc?x=1", nil)
	if got := FullURL(r); got != "http://internal:8080/jobs/abc?x=1" {
		t.Errorf("direct = %q", got)
	}
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "certs.example.org")
	if got := FullURL(r); got != "https://certs.example.org/jobs/abc?x=1" {
		t.Errorf("proxied = %q", got)
	}
}

func TestHasBody(t *testing.T) {
	if HasBody(httptest.NewRequest(http.MethodGet, "/", strings.NewReader("x"))) {
		t.Error("GET has no body")
	}
	if HasBody(httptest.NewRequest(http.MethodPost, "/", nil)) {
		t.Error("POST without body")
	}
	if !HasBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))) {
		t.Error("POST with body")
	}
}
