package extension

import (
	"context"
	"log/slog"
	"net/http"

	dispatch "github.com/hookline/dispatch"
	"github.com/hookline/dispatch/api"
)

// Extension is the Forge extension for dispatch.
type Extension struct {
	config Config
	opts   []dispatch.Option
	logger *slog.Logger

	svc *dispatch.Service
}

// New creates a new dispatch Forge extension.
func New(opts ...ExtOption) *Extension {
	e := &Extension{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init builds the dispatch Service from the accumulated options, runs
// migrations unless disabled, and returns the service. The host calls it
// once, before Start.
func (e *Extension) Init(ctx context.Context) (*dispatch.Service, error) {
	opts := append(e.config.ToDispatchOptions(), e.opts...)
	opts = append(opts, dispatch.WithLogger(e.logger))

	svc, err := dispatch.New(opts...)
	if err != nil {
		return nil, err
	}

	if !e.config.DisableMigrate {
		if err := svc.Store().Migrate(ctx); err != nil {
			return nil, err
		}
	}

	e.svc = svc
	return svc, nil
}

// Start begins the delivery worker, scheduler, and sweeper.
func (e *Extension) Start(ctx context.Context) {
	if e.svc != nil {
		e.svc.Start(ctx)
	}
}

// Stop gracefully shuts the background loops down.
func (e *Extension) Stop(ctx context.Context) {
	if e.svc != nil {
		e.svc.Stop(ctx)
	}
}

// Handler creates the API handler for the initialized service.
// This can be used standalone without Forge integration.
func (e *Extension) Handler() http.Handler {
	return api.NewHandler(e.svc, e.logger)
}

// Service returns the initialized dispatch service, nil before Init.
func (e *Extension) Service() *dispatch.Service {
	return e.svc
}

// Prefix returns the configured URL prefix.
func (e *Extension) Prefix() string { return e.config.BasePath }
