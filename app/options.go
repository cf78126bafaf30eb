package app

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/mattn/go-colorable"

	actx "go.hackfix.me/stash/app/context"
)

// Option is a function that allows configuring the application.
type Option func(*App)

// WithContext sets the main context of the application.
func WithContext(ctx context.Context) Option {
	return func(app *App) {
		app.ctx.Ctx = ctx
	}
}

// WithEnv sets the process environment used by the application.
func WithEnv(env actx.Environment) Option {
	return func(app *App) {
		app.ctx.Env = env
	}
}

// WithExit sets the function that stops the application.
func WithExit(fn func(int)) Option {
	return func(app *App) {
		app.Exit = fn
	}
}

// WithFDs sets the file descriptors used by the application.
func WithFDs(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(app *App) {
		app.ctx.Stdin = stdin
		app.ctx.Stdout = stdout
		app.ctx.Stderr = stderr
	}
}

// WithFS sets the filesystem used by the application.
func WithFS(fs vfs.FileSystem) Option {
	return func(app *App) {
		app.ctx.FS = fs
	}
}

// WithLogger initializes the logger used by the application. Colors are only
// enabled if stderr is a terminal.
func WithLogger(isStdoutTTY, isStderrTTY bool) Option {
	return func(app *App) {
		w := app.ctx.Stderr
		if f, ok := w.(*os.File); ok && isStderrTTY {
			w = colorable.NewColorable(f)
		}
		logger := slog.New(
			tint.NewHandler(w, &tint.Options{
				Level:      app.ctx.LogLevel,
				NoColor:    !isStderrTTY,
				TimeFormat: "2006-01-02 15:04:05.000",
			}),
		)
		app.ctx.Logger = logger
		slog.SetDefault(logger)
	}
}
