// Package app wires configuration into the collaborators shared by the
// server and the operator CLI.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"permaudit.io/internal/analytics"
	"permaudit.io/internal/auth"
	"permaudit.io/internal/config"
	"permaudit.io/internal/jira"
	"permaudit.io/internal/runner"
	"permaudit.io/internal/store"
	"permaudit.io/internal/store/pg"
	"permaudit.io/internal/store/sqlite"
	"permaudit.io/internal/stream"
)

type App struct {
	Config    *config.Config
	Jira      *jira.Client
	Analytics *analytics.Client
	Auth      *auth.Authenticator
	Runner    *runner.Runner
	// Events receives every run status change.
	Events *stream.Hub[runner.Status]
	// Ready pings the configured database; nil for the in-memory store.
	Ready interface {
		Ping(ctx context.Context) error
	}
	Log    *zap.Logger
	closer func() error
}

// Build opens the state store and constructs the audit runner. With a
// database URL the schema is migrated before use.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	jc, err := jira.New(cfg.JiraClient())
	if err != nil {
		return nil, fmt.Errorf("jira client: %w", err)
	}
	a := &App{
		Config:    cfg,
		Jira:      jc,
		Analytics: analytics.New(cfg.AnalyticsClient()),
		Auth:      auth.NewAuthenticator(cfg.Auth.Secret),
		Log:       log,
	}

	var kv store.KV
	switch {
	case cfg.Database.URL != "":
		st, err := pg.Open(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := st.EnsureSchema(ctx); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		kv, a.Ready, a.closer = st, st, st.Close
	case cfg.Database.SQLitePath != "":
		st, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		kv, a.Ready, a.closer = st, st, st.Close
	default:
		log.Warn("no database configured, scan state is kept in memory")
		kv = store.NewInMemory()
	}

	a.Events = stream.New[runner.Status]()
	tracker := runner.NewTracker()
	tracker.OnChange(a.Events.Publish)
	a.Runner = runner.New(runner.Deps{
		Jira:      jc,
		Publisher: a.Analytics,
		Store:     kv,
		Tracker:   tracker,
		Logger:    log,
	}, cfg.RunnerOptions())
	return a, nil
}

func (a *App) Close() error {
	if a.closer != nil {
		return a.closer()
	}
	return nil
}
