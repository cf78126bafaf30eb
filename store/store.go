// Package store implements a generic, thread-safe key-value store that can be
// persisted to and restored from a pluggable Backend.
//
// All map operations are guarded by a single lock, which is only held for the
// duration of the map operation itself and never across I/O. Bulk operations
// (Import, Export, CopyTo and CopyFrom) are admitted one at a time: a call
// made while another one is in progress returns ResultBusy immediately.
// Failures of bulk operations never propagate as panics or errors; they're
// collected and exposed by Errors until the next bulk operation starts.
package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"reflect"
	"sync"
	"time"

	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
)

// Store is a persistent key-value map.
type Store[K comparable, V any] struct {
	name     string
	root     string
	fs       vfs.FileSystem
	logger   *slog.Logger
	metrics  *Metrics
	copyHook CopyHook
	backend  Backend[K, V]

	status statusMachine

	mx      sync.Mutex
	entries map[K]V // nil once disposed

	errMx sync.Mutex
	sink  errorSink
}

// New creates a store rooted at root, which is created if it doesn't exist,
// and initializes the backend.
func New[K comparable, V any](root string, backend Backend[K, V], opts ...Option) (*Store[K, V], error) {
	if root == "" {
		return nil, errors.New("store root directory is required")
	}
	if backend == nil {
		return nil, errors.New("store backend is required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.fs == nil {
		o.fs = osfs.New()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.names == nil {
		o.names = DefaultNames
	}
	if o.name == "" {
		o.name = o.names.Next()
	}

	s := &Store[K, V]{
		name:     o.name,
		root:     root,
		fs:       o.fs,
		logger:   o.logger.With("store", o.name),
		metrics:  o.metrics,
		copyHook: o.copyHook,
		backend:  backend,
		entries:  make(map[K]V),
	}
	s.status.v.Store(int32(StatusInitializing))

	if err := s.fs.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("failed creating store root directory: %w", err)
	}

	loc := Location{FS: s.fs, Root: root, Name: s.name, Logger: s.logger}
	if err := backend.Init(loc); err != nil {
		return nil, &OpError{Op: StatusInitializing, Path: root, Err: err}
	}

	s.status.v.Store(int32(StatusIdle))

	return s, nil
}

// Name returns the store name.
func (s *Store[K, V]) Name() string {
	return s.name
}

// Root returns the store root directory.
func (s *Store[K, V]) Root() string {
	return s.root
}

// Status returns the current lifecycle phase.
func (s *Store[K, V]) Status() Status {
	return s.status.load()
}

// Import loads entries from the backend into the store. Loaded entries
// overwrite existing ones with the same key.
func (s *Store[K, V]) Import() Result {
	return s.run(StatusImporting, s.backend.Import)
}

// Export persists the store entries with the backend.
func (s *Store[K, V]) Export() Result {
	return s.run(StatusExporting, s.backend.Export)
}

// CopyTo merges all entries of s into target.
func (s *Store[K, V]) CopyTo(target *Store[K, V]) Result {
	if target == s {
		return s.sameStoreResult()
	}

	return s.run(StatusCopying, func(b *Batch[K, V]) error {
		if target == nil {
			return errors.New("copy target is nil")
		}
		entries := b.Entries()
		if err := target.merge(entries); err != nil {
			return fmt.Errorf("failed copying to store '%s': %w", target.name, err)
		}
		return s.afterCopy(CopiedTo, len(entries))
	})
}

// CopyFrom merges all entries of source into s.
func (s *Store[K, V]) CopyFrom(source *Store[K, V]) Result {
	if source == s {
		return s.sameStoreResult()
	}

	return s.run(StatusCopying, func(b *Batch[K, V]) error {
		if source == nil {
			return errors.New("copy source is nil")
		}
		entries, err := source.snapshot()
		if err != nil {
			return fmt.Errorf("failed copying from store '%s': %w", source.name, err)
		}
		b.PutAll(entries)
		return s.afterCopy(CopiedFrom, len(entries))
	})
}

func (s *Store[K, V]) sameStoreResult() Result {
	if s.Status() == StatusDisposed {
		return ResultNull
	}
	return ResultOK
}

func (s *Store[K, V]) afterCopy(dir CopyDirection, n int) error {
	if s.copyHook == nil {
		return nil
	}
	return s.copyHook(dir, n)
}

func (s *Store[K, V]) run(op Status, hook func(*Batch[K, V]) error) Result {
	verb := opVerb(op)

	cur, ok := s.status.admit(op)
	if !ok {
		res := ResultBusy
		if cur == StatusDisposed {
			res = ResultNull
		}
		s.logger.Debug(fmt.Sprintf("%s rejected", verb), "status", cur, "result", res)
		s.metrics.observe(s.name, op, res, 0)
		return res
	}
	defer s.status.release(op)

	start := time.Now()
	s.errMx.Lock()
	gen := s.sink.reset(op)
	s.errMx.Unlock()

	b := &Batch[K, V]{store: s, op: op, gen: gen}
	res := ResultOK
	if err := Catch(func() error { return hook(b) }); err != nil {
		opErr, ok := err.(*OpError)
		if !ok {
			opErr = &OpError{Op: op, Path: s.root, Err: err}
		}
		b.Fail(opErr)
		res = ResultError
	}

	elapsed := time.Since(start)
	s.logger.Debug(fmt.Sprintf("%s finished", verb),
		"result", res, "errors", len(s.ErrorsOf(op)), "duration", elapsed)
	s.metrics.observe(s.name, op, res, elapsed)

	return res
}

// Catch calls fn, and returns a panic in fn as an error. Backends use it
// wherever a codec runs outside the goroutine of the bulk operation, or where
// a single entry must not abort the others.
func Catch(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// HasErrors reports whether any recorded failure is present.
func (s *Store[K, V]) HasErrors() bool {
	s.errMx.Lock()
	defer s.errMx.Unlock()
	return len(s.sink.records) > 0
}

// Errors returns the failures recorded by the last attempt of each kind of
// bulk operation, in the order they happened. An attempt only clears the
// failures of its own kind, so e.g. an Import keeps the failures of the
// previous Export. The elements are of type *OpError.
func (s *Store[K, V]) Errors() []error {
	s.errMx.Lock()
	defer s.errMx.Unlock()
	return s.sink.errors(nil)
}

// ErrorsOf returns the failures recorded by the last attempt of op.
func (s *Store[K, V]) ErrorsOf(op Status) []error {
	s.errMx.Lock()
	defer s.errMx.Unlock()
	return s.sink.errors(&op)
}

// Err returns all recorded failures joined in one error, or nil if there were
// none.
func (s *Store[K, V]) Err() error {
	return errors.Join(s.Errors()...)
}

// Close disposes the store. The entries and recorded errors are dropped, and
// the backend is closed, which waits for any background write to complete.
// Only the first call has any effect.
func (s *Store[K, V]) Close() error {
	if !s.status.dispose() {
		return nil
	}

	s.mx.Lock()
	s.entries = nil
	s.mx.Unlock()

	s.errMx.Lock()
	s.sink.clear()
	s.errMx.Unlock()

	var err error
	if c, ok := s.backend.(io.Closer); ok {
		err = c.Close()
	}
	s.logger.Debug("store disposed")

	return err
}

// Add stores value under key, failing if key already exists.
func (s *Store[K, V]) Add(key K, value V) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.entries == nil {
		return ErrDisposed
	}
	if _, ok := s.entries[key]; ok {
		return fmt.Errorf("%w: '%v'", ErrKeyExists, key)
	}
	s.entries[key] = value
	return nil
}

// Set stores value under key, replacing any existing value.
func (s *Store[K, V]) Set(key K, value V) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.entries == nil {
		return ErrDisposed
	}
	s.entries[key] = value
	return nil
}

// Get returns the value stored under key.
func (s *Store[K, V]) Get(key K) (value V, err error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.entries == nil {
		return value, ErrDisposed
	}
	value, ok := s.entries[key]
	if !ok {
		return value, fmt.Errorf("%w: '%v'", ErrNotFound, key)
	}
	return value, nil
}

// TryGet returns the value stored under key, and whether it was found.
func (s *Store[K, V]) TryGet(key K) (V, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	value, ok := s.entries[key]
	return value, ok
}

// Remove deletes key, and reports whether it was present.
func (s *Store[K, V]) Remove(key K) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	return true
}

// Clear deletes all entries.
func (s *Store[K, V]) Clear() {
	s.mx.Lock()
	defer s.mx.Unlock()
	clear(s.entries)
}

// ContainsKey reports whether key is present.
func (s *Store[K, V]) ContainsKey(key K) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	_, ok := s.entries[key]
	return ok
}

// ContainsValue reports whether any entry holds a value deeply equal to value.
func (s *Store[K, V]) ContainsValue(value V) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	for _, v := range s.entries {
		if reflect.DeepEqual(v, value) {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (s *Store[K, V]) Len() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.entries)
}

// Keys returns the keys of all entries, in no particular order.
func (s *Store[K, V]) Keys() []K {
	s.mx.Lock()
	defer s.mx.Unlock()
	keys := make([]K, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a copy of all entries. It returns nil if the store is
// disposed.
func (s *Store[K, V]) Snapshot() map[K]V {
	entries, _ := s.snapshot()
	return entries
}

func (s *Store[K, V]) snapshot() (map[K]V, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.entries == nil {
		return nil, ErrDisposed
	}
	return maps.Clone(s.entries), nil
}

func (s *Store[K, V]) merge(entries map[K]V) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.entries == nil {
		return ErrDisposed
	}
	maps.Copy(s.entries, entries)
	return nil
}
