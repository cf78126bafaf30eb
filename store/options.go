package store

import (
	"log/slog"

	"github.com/mandelsoft/vfs/pkg/vfs"
)

// Option is a function that allows configuring the store.
type Option func(*options)

type options struct {
	name     string
	names    *Names
	fs       vfs.FileSystem
	logger   *slog.Logger
	metrics  *Metrics
	copyHook CopyHook
}

// CopyDirection tells a CopyHook which side of the copy the store was on.
type CopyDirection int

// Copy directions.
const (
	CopiedTo CopyDirection = iota
	CopiedFrom
)

func (d CopyDirection) String() string {
	if d == CopiedFrom {
		return "from"
	}
	return "to"
}

// CopyHook is called after a successful CopyTo or CopyFrom with the number of
// entries copied. An error makes the copy operation fail.
type CopyHook func(dir CopyDirection, copied int) error

// WithName sets the store name. It's used by backends to name the physical
// storage.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithNames sets the registry used to generate a name when none is given.
func WithNames(names *Names) Option {
	return func(o *options) {
		o.names = names
	}
}

// WithFS sets the filesystem used by the store and its backend.
func WithFS(fs vfs.FileSystem) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithLogger sets the logger used by the store and its backend.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics enables reporting of bulk operation metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithCopyHook sets the function called after entries are copied.
func WithCopyHook(hook CopyHook) Option {
	return func(o *options) {
		o.copyHook = hook
	}
}
