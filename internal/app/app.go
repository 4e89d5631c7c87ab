package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"trellis/internal/maintenance"
	"trellis/pkg/banner"
	"trellis/pkg/config"
	"trellis/pkg/membership"
	"trellis/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg       config.Config
	version   string
	commit    string
	buildDate string

	store   *store.Store
	members *membership.Controller

	srv *http.Server
}

// New initializes resources that do not require a running context (DB,
// membership controller). It does not start the HTTP server or the
// maintenance scheduler; call Run to start those and block until shutdown.
func New(cfg config.Config, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate config early and fail fast
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	s, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Storage.DBPath, err)
	}

	a := &App{
		cfg:       cfg,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		store:     s,
		members:   membership.NewController(s, adminCheck(cfg.Security.Admins)),
	}
	return a, nil
}

// adminCheck builds the injected admin capability from the configured
// roster. The roster is global: an admin may decide requests in any group.
func adminCheck(admins []string) membership.AdminCheck {
	set := make(map[string]struct{}, len(admins))
	for _, id := range admins {
		set[id] = struct{}{}
	}
	return func(_, userID string) bool {
		_, ok := set[userID]
		return ok
	}
}

// Store exposes the opened store, mainly for tests.
func (a *App) Store() *store.Store { return a.store }

// Run starts the maintenance scheduler and the HTTP server, and blocks until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	maintCancel, err := maintenance.Start(ctx, a.store, a.cfg.Maintenance)
	if err != nil {
		return err
	}
	defer maintCancel()

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdownHTTP()
		return a.store.Close()
	case err := <-errCh:
		_ = a.store.Close()
		return err
	}
}

func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.Print(a.cfg, verStr)
}
