package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"go.hackfix.me/stash/app/cli"
	actx "go.hackfix.me/stash/app/context"
	aerrors "go.hackfix.me/stash/app/errors"
	"go.hackfix.me/stash/store"
)

// App is the application.
type App struct {
	ctx      *actx.Context
	cli      *cli.CLI
	registry *prometheus.Registry

	Exit func(int)
}

// New initializes a new application.
func New(opts ...Option) (*App, error) {
	defaultCtx := &actx.Context{
		Ctx:      context.Background(),
		Version:  actx.GetVersion().String(),
		Logger:   slog.Default(),
		LogLevel: &slog.LevelVar{},
	}
	app := &App{ctx: defaultCtx, Exit: func(int) {}}

	for _, opt := range opts {
		opt(app)
	}

	app.registry = prometheus.NewRegistry()
	metrics, err := store.NewMetrics(app.registry)
	if err != nil {
		return nil, err
	}
	app.ctx.Metrics = metrics

	app.cli = &cli.CLI{}
	if err = app.cli.Setup(app.ctx, app.Exit); err != nil {
		return nil, err
	}

	return app, nil
}

// Run executes the command specified by args.
func (app *App) Run(args []string) error {
	err := app.cli.Execute(app.ctx, args)

	if path := app.cli.MetricsFile; path != "" {
		if werr := prometheus.WriteToTextfile(path, app.registry); werr != nil {
			err = errors.Join(err, fmt.Errorf("failed writing metrics: %w", werr))
		}
	}

	return err
}

// FatalIfErrorf terminates the application with an error message if err != nil.
func (app *App) FatalIfErrorf(err error, args ...any) {
	if err == nil {
		return
	}

	var hintErr aerrors.WithHint
	if errors.As(err, &hintErr) && hintErr.Hint() != "" {
		args = append(args, "hint", hintErr.Hint())
	}
	app.ctx.Logger.Error(err.Error(), args...)
	app.Exit(1)
}
