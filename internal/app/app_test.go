package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/inventory/internal/config"
	"github.com/JonMunkholm/inventory/internal/core"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "0.0.0.0", Port: 8080, ShutdownTimeout: time.Second},
		Portal: config.PortalConfig{
			Namespace:       "_inventory_",
			ValidateTimeout: 5 * time.Second,
			ProcessTimeout:  6 * time.Second,
			FetchTimeout:    7 * time.Second,
			SubmitTimeout:   8 * time.Second,
		},
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			Extensions:    []string{".xlsx"},
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
		},
		Session:  config.SessionConfig{TTL: time.Hour, SweepInterval: time.Minute},
		Upstream: config.UpstreamConfig{Enabled: true, MountPath: "/portal"},
	}
}

func TestPortalURL(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"loopback for wildcard host", func(*config.Config) {}, "http://127.0.0.1:8080/portal"},
		{"explicit host", func(c *config.Config) { c.Server.Host = "10.0.0.5" }, "http://10.0.0.5:8080/portal"},
		{"configured portal", func(c *config.Config) { c.Portal.BaseURL = "https://portal.example.com/inv" }, "https://portal.example.com/inv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			a := &App{cfg: cfg}
			if got := a.portalURL(); got != tt.want {
				t.Errorf("portalURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServiceConfig(t *testing.T) {
	got := ServiceConfig(baseConfig())
	want := core.ServiceConfig{
		Rules: core.FileRules{MaxSize: 1 << 20, Extensions: []string{".xlsx"}},
		Timeouts: core.Timeouts{
			Validate: 5 * time.Second,
			Process:  6 * time.Second,
			Fetch:    7 * time.Second,
			Submit:   8 * time.Second,
		},
		SessionTTL:    time.Hour,
		MaxConcurrent: 2,
		MaxWait:       time.Second,
		Namespace:     "_inventory_",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ServiceConfig (-want +got):\n%s", diff)
	}
}

func TestNew_MountsUpstream(t *testing.T) {
	a, err := New(context.Background(), baseConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portal/template", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("template status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
	if a.Service().Count() != 0 {
		t.Errorf("sessions = %d", a.Service().Count())
	}
}

func TestNew_WithoutUpstream(t *testing.T) {
	cfg := baseConfig()
	cfg.Upstream.Enabled = false
	cfg.Portal.BaseURL = "https://portal.example.com"
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portal/template", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("template status = %d, want 404", rec.Code)
	}
}
