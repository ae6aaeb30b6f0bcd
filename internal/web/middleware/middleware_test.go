package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/JonMunkholm/inventory/internal/config"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.SecurityConfig
		header   string
		query    string
		want     int
		wantCode string
	}{
		{"disabled", config.SecurityConfig{}, "", "", http.StatusOK, ""},
		{"missing", config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}, "", "", http.StatusUnauthorized, "AUTH_MISSING_KEY"},
		{"invalid", config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}, "k2", "", http.StatusForbidden, "AUTH_INVALID_KEY"},
		{"second key", config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}, "k2", "", http.StatusOK, ""},
		{"query fallback", config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}, "", "k1", http.StatusOK, ""},
		{"no keys configured", config.SecurityConfig{RequireAPIKey: true}, "k1", "", http.StatusForbidden, "AUTH_INVALID_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := APIKeyAuth(&tt.cfg)(http.HandlerFunc(okHandler))

			target := "/api/sessions"
			if tt.query != "" {
				target += "?api_key=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.wantCode == "" {
				return
			}
			var body struct {
				Code string `json:"code"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{"no proxies", nil, "203.0.113.9:4000", map[string]string{"X-Real-IP": "10.1.1.1"}, "203.0.113.9"},
		{"untrusted proxy", []string{"10.0.0.0/8"}, "203.0.113.9:4000", map[string]string{"X-Real-IP": "10.1.1.1"}, "203.0.113.9"},
		{"real ip", []string{"10.0.0.0/8"}, "10.0.0.2:4000", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"forwarded chain", []string{"10.0.0.2"}, "10.0.0.2:4000", map[string]string{"X-Forwarded-For": "198.51.100.7, 10.0.0.2"}, "198.51.100.7"},
		{"invalid header", []string{"10.0.0.0/8"}, "10.0.0.2:4000", map[string]string{"X-Real-IP": "not-an-ip"}, "10.0.0.2"},
		{"spoofed chain head", []string{"10.0.0.0/8"}, "10.0.0.2:4000", map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.7, 10.0.0.3"}, "198.51.100.7"},
		{"all hops trusted", []string{"10.0.0.0/8"}, "10.0.0.2:4000", map[string]string{"X-Forwarded-For": "10.0.0.9"}, "10.0.0.2"},
		{"ipv6 proxy", []string{"::1"}, "[::1]:4000", map[string]string{"X-Real-IP": "2001:db8::7"}, "2001:db8::7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIP(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("client ip = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseProxyList(t *testing.T) {
	list := ParseProxyList([]string{"10.0.0.0/8", " 192.168.1.5 ", "", "not-a-cidr", "10.1.2.3/16"})
	if len(list) != 3 {
		t.Fatalf("list = %v, want 3 entries", list)
	}
	tests := []struct {
		addr string
		want bool
	}{
		{"10.200.0.1", true},
		{"192.168.1.5", true},
		{"192.168.1.6", false},
		{"10.1.99.1", true},
		{"::ffff:10.0.0.1", true},
		{"203.0.113.1", false},
	}
	for _, tt := range tests {
		if got := list.Contains(netip.MustParseAddr(tt.addr)); got != tt.want {
			t.Errorf("Contains(%s) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.(http.Flusher).Flush()
		w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/brew", nil))

	if rec.Code != http.StatusTeapot || !rec.Flushed {
		t.Errorf("code = %d flushed = %v", rec.Code, rec.Flushed)
	}
	line := buf.String()
	for _, want := range []string{`"path":"/brew"`, `"status":418`, `"bytes":15`} {
		if !strings.Contains(line, want) {
			t.Errorf("log missing %s: %s", want, line)
		}
	}
}
