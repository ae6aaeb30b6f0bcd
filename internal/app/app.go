// Package app assembles the inventory form service from configuration: the
// inventory store, the reference upstream, the portal client, the session
// service and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/inventory/internal/config"
	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/portal"
	"github.com/JonMunkholm/inventory/internal/sheet"
	"github.com/JonMunkholm/inventory/internal/store"
	"github.com/JonMunkholm/inventory/internal/upstream"
	"github.com/JonMunkholm/inventory/internal/web"
)

// App is a wired service ready to run.
type App struct {
	cfg     *config.Config
	store   store.Store
	service *core.Service
	server  *web.Server
}

// New wires every component described by cfg. The caller must Close the
// App if Run is never called.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	var opts []web.Option
	if cfg.Upstream.Enabled {
		up, err := a.upstream(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, web.WithUpstream(up.Routes()))
	}

	client, err := portal.New(portal.Config{
		BaseURL:      a.portalURL(),
		ValidatePath: cfg.Portal.ValidatePath,
		ProcessPath:  cfg.Portal.ProcessPath,
		FetchPath:    cfg.Portal.FetchPath,
		SubmitPath:   cfg.Portal.SubmitPath,
		Logger:       slog.Default().With("component", "portal"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.service = core.NewService(client, ServiceConfig(cfg), slog.Default())
	a.server = web.NewServer(a.service, cfg, opts...)
	return a, nil
}

// ServiceConfig derives the session service settings from cfg.
func ServiceConfig(cfg *config.Config) core.ServiceConfig {
	return core.ServiceConfig{
		Rules: core.FileRules{
			MaxSize:    cfg.Upload.MaxFileSize,
			Extensions: cfg.Upload.Extensions,
		},
		Timeouts: core.Timeouts{
			Validate: cfg.Portal.ValidateTimeout,
			Process:  cfg.Portal.ProcessTimeout,
			Fetch:    cfg.Portal.FetchTimeout,
			Submit:   cfg.Portal.SubmitTimeout,
		},
		SessionTTL:    cfg.Session.TTL,
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
		Namespace:     cfg.Portal.Namespace,
	}
}

// upstream builds the reference portlet endpoints and their store.
func (a *App) upstream(ctx context.Context) (*upstream.Handler, error) {
	tmpl := sheet.DefaultTemplate()
	if path := a.cfg.Upstream.TemplatePath; path != "" {
		var err error
		if tmpl, err = sheet.LoadTemplateFile(path); err != nil {
			return nil, err
		}
		slog.Info("template loaded", "path", path, "columns", len(tmpl.Columns))
	}

	s, err := OpenStore(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.store = s

	return upstream.New(upstream.Config{
		Template:  tmpl,
		Store:     s,
		Namespace: a.cfg.Portal.Namespace,
		Logger:    slog.Default().With("component", "upstream"),
	}), nil
}

// OpenStore connects to PostgreSQL when a URL is configured and falls back
// to an in-memory store otherwise.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	if cfg.URL == "" {
		slog.Info("no database configured, inventories are kept in memory")
		return store.NewMemory(), nil
	}

	pg, err := store.Connect(ctx, store.PoolConfig{
		URL:             cfg.URL,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
	}
	slog.Info("connected to database", "max_conns", cfg.MaxConns)
	return pg, nil
}

// portalURL returns the configured portal, or the in-process upstream over
// loopback.
func (a *App) portalURL() string {
	if a.cfg.Portal.BaseURL != "" {
		return a.cfg.Portal.BaseURL
	}
	host := a.cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(a.cfg.Server.Port)) + "/" + strings.TrimLeft(a.cfg.Upstream.MountPath, "/")
}

// Handler returns the HTTP handler, for tests.
func (a *App) Handler() http.Handler { return a.server.Router() }

// Service returns the session service.
func (a *App) Service() *core.Service { return a.service }

// Run serves until ctx is cancelled, then shuts down: sessions first so
// in-flight upstream calls drain, then the HTTP server.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.service.StartSessionSweeper(ctx, a.cfg.Session.SweepInterval)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		status := a.service.Limiter().Status()
		if status.Active > 0 {
			slog.Info("waiting for upstream calls to complete", "active", status.Active)
		}
		if err := a.service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("upstream calls did not complete in time", "error", err)
		}
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close releases the store.
func (a *App) Close() {
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
}
