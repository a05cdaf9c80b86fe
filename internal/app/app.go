// Package app wires all Prepdeck subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject test doubles via functional options (WithStore,
// WithBackend, WithRealtime). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/prepdeck/prepdeck/internal/agent"
	"github.com/prepdeck/prepdeck/internal/config"
	"github.com/prepdeck/prepdeck/internal/health"
	"github.com/prepdeck/prepdeck/internal/httpapi"
	"github.com/prepdeck/prepdeck/internal/observe"
	"github.com/prepdeck/prepdeck/internal/run"
	"github.com/prepdeck/prepdeck/internal/session"
	"github.com/prepdeck/prepdeck/internal/settings"
	"github.com/prepdeck/prepdeck/internal/transcript"
	"github.com/prepdeck/prepdeck/pkg/provider/llm"
	"github.com/prepdeck/prepdeck/pkg/provider/llm/anyllm"
	mockllm "github.com/prepdeck/prepdeck/pkg/provider/llm/mock"
	openaillm "github.com/prepdeck/prepdeck/pkg/provider/llm/openai"
	"github.com/prepdeck/prepdeck/pkg/provider/realtime"
	mockreal "github.com/prepdeck/prepdeck/pkg/provider/realtime/mock"
	openaireal "github.com/prepdeck/prepdeck/pkg/provider/realtime/openai"
	"github.com/prepdeck/prepdeck/pkg/store"
	pgstore "github.com/prepdeck/prepdeck/pkg/store/postgres"
)

// App owns all subsystem lifetimes for the Prepdeck server.
type App struct {
	cfg *config.Config

	store    store.Store
	backend  llm.Backend
	rtc      realtime.Provider
	registry *session.Registry
	bridge   *VoiceBridge
	server   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a session record store instead of creating one from
// config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithBackend injects a reasoning backend instead of creating one from
// config.
func WithBackend(b llm.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithRealtime injects a realtime voice provider instead of creating one
// from config.
func WithRealtime(p realtime.Provider) Option {
	return func(a *App) { a.rtc = p }
}

// New creates an App by wiring all subsystems together. Initialisation is
// synchronous: store connection, provider construction, registry, and the
// HTTP handler tree.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	var healthChecks []health.Checker

	// ── 1. Store ─────────────────────────────────────────────────────────
	if a.store == nil {
		if dsn := cfg.Storage.PostgresDSN; dsn != "" {
			pg, err := pgstore.New(ctx, dsn)
			if err != nil {
				return nil, fmt.Errorf("app: init store: %w", err)
			}
			a.store = pg
			a.closers = append(a.closers, func() error { pg.Close(); return nil })
			healthChecks = append(healthChecks, health.StoreChecker("store", pg))
			slog.Info("session store ready", "kind", "postgres")
		} else {
			a.store = store.NewMemStore()
			slog.Info("session store ready", "kind", "memory")
		}
	}

	// ── 2. Registry ──────────────────────────────────────────────────────
	metrics := observe.DefaultMetrics()
	regOpts := []session.RegistryOption{session.WithMetrics(metrics)}
	if cfg.Sessions.IdleTTL > 0 {
		regOpts = append(regOpts, session.WithTTL(cfg.Sessions.IdleTTL))
	}
	a.registry = session.NewRegistry(a.store, regOpts...)

	// ── 3. Providers ─────────────────────────────────────────────────────
	if a.backend == nil {
		backend, err := buildBackend(cfg.Providers.Backend)
		if err != nil {
			return nil, fmt.Errorf("app: init backend: %w", err)
		}
		a.backend = backend
		slog.Info("reasoning backend ready", "name", cfg.Providers.Backend.Name)
	}
	if a.rtc == nil && cfg.Providers.Realtime.Name != "" {
		rtc, err := buildRealtime(cfg.Providers.Realtime)
		if err != nil {
			return nil, fmt.Errorf("app: init realtime: %w", err)
		}
		a.rtc = rtc
		slog.Info("realtime provider ready", "name", cfg.Providers.Realtime.Name)
	}

	// ── 4. Core components ───────────────────────────────────────────────
	sy := transcript.NewSynchronizer(a.registry, metrics)

	var orchOpts []agent.Option
	if cfg.Sessions.AttemptTimeout > 0 {
		orchOpts = append(orchOpts, agent.WithAttemptTimeout(cfg.Sessions.AttemptTimeout))
	}
	orch := agent.NewOrchestrator(a.registry, a.backend, orchOpts...)
	guard := settings.NewGuard(a.registry)
	runs := run.NewManager(a.registry, metrics)

	var voice httpapi.VoiceController
	if a.rtc != nil {
		a.bridge = NewVoiceBridge(a.rtc, a.registry, sy)
		voice = a.bridge
	}

	// ── 5. HTTP handler tree ─────────────────────────────────────────────
	mux := http.NewServeMux()
	httpapi.New(a.registry, orch, guard, runs, sy, voice).Register(mux)
	health.New(healthChecks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run serves HTTP and runs the registry's eviction loop until ctx is
// cancelled, then returns ctx's error.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.registry.Run(ctx)
	})

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("listening", "addr", a.server.Addr, "tls", true)
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("listening", "addr", a.server.Addr, "tls", false)
			err = a.server.ListenAndServe()
		}
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.bridge != nil {
			a.bridge.CloseAll()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// Registry exposes the session registry, primarily for tests.
func (a *App) Registry() *session.Registry { return a.registry }

// buildBackend constructs the configured reasoning backend.
func buildBackend(entry config.ProviderEntry) (llm.Backend, error) {
	switch entry.Name {
	case "openai":
		var opts []openaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(entry.BaseURL))
		}
		return openaillm.New(entry.APIKey, opts...)

	case "anyllm":
		provider := optString(entry.Options, "provider")
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(provider, opts...)

	case "mock":
		// Local development without an API key.
		return &mockllm.Backend{}, nil

	default:
		return nil, fmt.Errorf("unknown backend provider %q", entry.Name)
	}
}

// buildRealtime constructs the configured realtime voice provider.
func buildRealtime(entry config.ProviderEntry) (realtime.Provider, error) {
	switch entry.Name {
	case "openai-realtime":
		var opts []openaireal.Option
		if entry.Model != "" {
			opts = append(opts, openaireal.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openaireal.WithBaseURL(entry.BaseURL))
		}
		return openaireal.New(entry.APIKey, opts...), nil

	case "mock":
		return &mockreal.Provider{}, nil

	default:
		return nil, fmt.Errorf("unknown realtime provider %q", entry.Name)
	}
}

// optString extracts a string value from a provider Options map. Returns ""
// if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
