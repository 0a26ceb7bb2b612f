// Package app wires configuration into the document store, schema fetcher,
// factor resolver, calculation client and HTTP components.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-carbonform/components/calculate"
	"github.com/goliatone/go-carbonform/components/forms"
	"github.com/goliatone/go-carbonform/internal/config"
	"github.com/goliatone/go-carbonform/internal/docstore"
	pkgcalculate "github.com/goliatone/go-carbonform/pkg/calculate"
	"github.com/goliatone/go-carbonform/pkg/factors"
	"github.com/goliatone/go-carbonform/pkg/orchestrator"
	"github.com/goliatone/go-carbonform/pkg/render"
	"github.com/goliatone/go-carbonform/pkg/schema"
	"github.com/goliatone/go-carbonform/pkg/visibility"
)

// App holds the long-lived collaborators shared by the CLI commands.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    docstore.Store
	Fetcher  *schema.Fetcher
	Resolver *visibility.Resolver
	Client   *pkgcalculate.Client
	Renderer *render.HTMLRenderer
}

// New opens the configured document store and builds every collaborator.
// Close releases the store.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	src, err := cfg.SchemaSource()
	if err != nil {
		return nil, err
	}
	store, err := docstore.Open(src,
		docstore.WithRequestTimeout(cfg.StoreTimeout()),
		docstore.WithPollInterval(cfg.PollInterval()),
		docstore.WithLogger(logger.Named("docstore")),
	)
	if err != nil {
		return nil, fmt.Errorf("app: open document store: %w", err)
	}

	client, err := pkgcalculate.New(cfg.Backend.BaseURL,
		pkgcalculate.WithTimeout(cfg.BackendTimeout()),
		pkgcalculate.WithRetries(cfg.Backend.Retries),
		pkgcalculate.WithBackoff(cfg.BackendBackoff()),
		pkgcalculate.WithEndpoints(cfg.Backend.Endpoints),
		pkgcalculate.WithLogger(logger.Named("calculate")),
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("app: calculation client: %w", err)
	}

	renderer, err := render.NewHTMLRenderer()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{
		Config: cfg,
		Logger: logger,
		Store:  store,
		Fetcher: schema.New(store,
			schema.WithPath(cfg.Schema.Path),
			schema.WithTTL(cfg.SchemaTTL()),
			schema.WithLoadTimeout(cfg.StoreTimeout()),
			schema.WithLogger(logger.Named("schema")),
		),
		Resolver: visibility.NewResolver(nil),
		Client:   client,
		Renderer: renderer,
	}, nil
}

// Close releases the document store.
func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// LoadFactors reads the factor document into the resolver. A missing
// document leaves every field as a free input.
func (a *App) LoadFactors(ctx context.Context) error {
	records, err := factors.Load(ctx, a.Store, a.Config.Factors.Path)
	if err != nil {
		if errors.Is(err, schema.ErrDocumentNotFound) {
			a.Logger.Warn("no emission factors found", zap.String("path", a.Config.Factors.Path))
			return nil
		}
		return err
	}
	a.Resolver.Replace(records)
	a.Logger.Info("emission factors loaded", zap.Int("records", len(records)))
	return nil
}

// WatchFactors keeps the resolver in sync with the factor document until
// the returned stop function is called or ctx ends.
func (a *App) WatchFactors(ctx context.Context) (func(), error) {
	path := a.Config.Factors.Path
	if path == "" {
		path = factors.DefaultPath
	}
	return a.Store.Watch(ctx, path, func(raw []byte) {
		records, err := factors.Decode(raw)
		if err != nil {
			a.Logger.Warn("ignoring invalid factor document", zap.Error(err))
			return
		}
		a.Resolver.Replace(records)
		a.Logger.Info("emission factors updated", zap.Int("records", len(records)))
	})
}

// NewOrchestrator returns an orchestrator bound to the shared fetcher,
// resolver and client. Each interactive session gets its own.
func (a *App) NewOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(a.Fetcher,
		orchestrator.WithResolver(a.Resolver),
		orchestrator.WithCalculator(a.Client),
		orchestrator.WithLogger(a.Logger.Named("orchestrator")),
	)
}

// Mux mounts the calculate and forms components plus a health check.
func (a *App) Mux() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	calc := calculate.New(
		calculate.WithSchema(a.Fetcher),
		calculate.WithCalculator(a.Client),
		calculate.WithLogger(a.Logger.Named("http.calculate")),
	)
	if _, err := calc.RegisterRoutes(mux, ""); err != nil {
		return nil, err
	}

	formsComponent := forms.New(
		forms.WithSchema(a.Fetcher),
		forms.WithResolver(a.Resolver),
		forms.WithRenderer(a.Renderer),
		forms.WithLogger(a.Logger.Named("http.forms")),
	)
	if _, err := formsComponent.RegisterRoutes(mux, ""); err != nil {
		return nil, err
	}

	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	return mux, nil
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down within
// the configured timeout.
func (a *App) Serve(ctx context.Context) error {
	mux, err := a.Mux()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           mux,
		ReadTimeout:       a.Config.ReadTimeout(),
		ReadHeaderTimeout: a.Config.ReadTimeout(),
		WriteTimeout:      a.Config.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout())
	defer cancel()
	a.Logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Warm fetches the schema once so configuration mistakes surface at start.
func (a *App) Warm(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if _, err := a.Fetcher.Fetch(ctx); err != nil {
		return err
	}
	return a.LoadFactors(ctx)
}
