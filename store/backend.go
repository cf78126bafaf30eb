package store

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mandelsoft/vfs/pkg/vfs"
)

// Backend is the physical storage strategy of a Store.
//
// Init is called once while the store is being constructed. Import and Export
// are called with the store admitted in the corresponding phase, so a backend
// never sees two bulk operations of the same store at once. A returned error
// fails the whole operation; failures of single entries should instead be
// reported with Batch.Fail.
//
// A backend that implements io.Closer is closed when the store is disposed.
type Backend[K comparable, V any] interface {
	Init(loc Location) error
	Import(b *Batch[K, V]) error
	Export(b *Batch[K, V]) error
}

// Location describes where and how a backend should persist its data.
type Location struct {
	FS     vfs.FileSystem
	Root   string
	Name   string
	Logger *slog.Logger
}

// Path joins elem to the root directory.
func (l Location) Path(elem ...string) string {
	return filepath.Join(append([]string{l.Root}, elem...)...)
}

// Batch gives a backend access to the store during a single bulk operation.
// It must not be retained after the operation completes, except by background
// writes that report failures with Fail.
type Batch[K comparable, V any] struct {
	store *Store[K, V]
	op    Status
	gen   uint64
}

// Op returns the phase of the operation.
func (b *Batch[K, V]) Op() Status {
	return b.op
}

// Logger returns the store logger.
func (b *Batch[K, V]) Logger() *slog.Logger {
	return b.store.logger
}

// Entries returns a copy of the store entries. The store lock is only held
// while copying.
func (b *Batch[K, V]) Entries() map[K]V {
	entries, _ := b.store.snapshot()
	return entries
}

// Put stores a single entry.
func (b *Batch[K, V]) Put(key K, value V) {
	_ = b.store.Set(key, value)
}

// PutAll stores all entries under a single lock acquisition.
func (b *Batch[K, V]) PutAll(entries map[K]V) {
	_ = b.store.merge(entries)
}

// Fail records a failure without aborting the operation. Errors that aren't
// *OpError are wrapped in one. Failures reported after a newer operation of
// the same kind started, or after the store was disposed, are only logged.
func (b *Batch[K, V]) Fail(err error) {
	if err == nil {
		return
	}
	opErr, ok := err.(*OpError)
	if !ok {
		opErr = &OpError{Op: b.op, Err: err}
	}

	s := b.store
	s.errMx.Lock()
	recorded := s.sink.add(b.op, b.gen, opErr)
	s.errMx.Unlock()

	s.metrics.failure(s.name, b.op)
	if recorded {
		s.logger.Warn(fmt.Sprintf("%s failure", opVerb(b.op)), "error", opErr)
	} else {
		s.logger.Warn(fmt.Sprintf("discarded stale %s failure", opVerb(b.op)), "error", opErr)
	}
}
