// Package dir implements a store backend that persists every entry in its own
// file, so that a failure to write or read one entry doesn't affect the
// others.
package dir

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mandelsoft/vfs/pkg/vfs"
	"golang.org/x/sync/errgroup"

	"go.hackfix.me/stash/store"
	"go.hackfix.me/stash/store/codec"
	"go.hackfix.me/stash/store/internal/fsutil"
)

// DefaultExtension is the extension of entry files.
const DefaultExtension = "vnc"

// Option is a function that allows configuring the backend.
type Option func(*options)

type options struct {
	ext         string
	async       bool
	concurrency int
	namer       Namer
}

// WithExtension sets the extension of entry files. Only files with this
// extension are read on import and removed before export.
func WithExtension(ext string) Option {
	return func(o *options) {
		o.ext = strings.TrimPrefix(ext, ".")
	}
}

// WithAsync makes exports write the entry files in the background.
func WithAsync(async bool) Option {
	return func(o *options) {
		o.async = async
	}
}

// WithConcurrency sets how many entry files are written at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithNamer sets the function that names entry files.
func WithNamer(namer Namer) Option {
	return func(o *options) {
		if namer != nil {
			o.namer = namer
		}
	}
}

// Backend stores each entry in a file directly under the store root.
type Backend[K comparable, V any] struct {
	codec       codec.EntryCodec[K, V]
	ext         string
	async       bool
	concurrency int
	namer       Namer

	fs     vfs.FileSystem
	root   string
	logger *slog.Logger
	writer fsutil.AsyncWriter
}

var _ store.Backend[string, any] = &Backend[string, any]{}

// New returns a new directory backend. If c is nil, entries are encoded with
// gob.
func New[K comparable, V any](c codec.EntryCodec[K, V], opts ...Option) *Backend[K, V] {
	o := &options{ext: DefaultExtension, concurrency: 4, namer: DefaultNamer}
	for _, opt := range opts {
		opt(o)
	}
	if c == nil {
		c = codec.ForEntry[K, V](codec.Gob)
	}

	return &Backend[K, V]{
		codec: c, ext: o.ext, async: o.async,
		concurrency: o.concurrency, namer: o.namer,
	}
}

// Init records the store location. The root directory is created by the
// store.
func (b *Backend[K, V]) Init(loc store.Location) error {
	b.fs = loc.FS
	b.root = loc.Root
	b.logger = loc.Logger

	return nil
}

// Import reads every entry file and stores its entry. Files that fail to
// decode, or hold a nil key or value, are reported and skipped.
func (b *Backend[K, V]) Import(batch *store.Batch[K, V]) error {
	b.waitPrevious()

	files, err := b.entryFiles()
	if err != nil {
		return &store.OpError{Op: batch.Op(), Path: b.root, Err: err}
	}

	var imported int
	for _, path := range files {
		key, value, err := b.readEntry(path)
		if err != nil {
			batch.Fail(&store.OpError{Op: batch.Op(), Path: path, Err: err})
			continue
		}
		if isNil(key) || isNil(value) {
			batch.Fail(&store.OpError{
				Op: batch.Op(), Key: key, Path: path, Err: store.ErrEntrySkipped,
			})
			continue
		}
		batch.Put(key, value)
		imported++
	}

	b.logger.Debug("imported entry files", "dir", b.root, "files", len(files), "entries", imported)

	return nil
}

// Export removes all entry files, and writes a file for each store entry.
// Entries that fail to encode are reported, and don't affect the others.
func (b *Backend[K, V]) Export(batch *store.Batch[K, V]) error {
	b.waitPrevious()

	entries := batch.Entries()
	if !b.async {
		if err := b.write(batch, entries); err != nil {
			return &store.OpError{Op: batch.Op(), Path: b.root, Err: err}
		}
		return nil
	}

	b.writer.Go(func() error {
		err := b.write(batch, entries)
		if err != nil {
			batch.Fail(&store.OpError{Op: batch.Op(), Path: b.root, Err: err})
		}
		return err
	})

	return nil
}

// Wait blocks until the last background export completes, and returns its
// error. Failures of single entries are only recorded in the store.
func (b *Backend[K, V]) Wait() error {
	return b.writer.Wait()
}

// Close waits for any background export to complete.
func (b *Backend[K, V]) Close() error {
	return b.writer.Wait()
}

func (b *Backend[K, V]) write(batch *store.Batch[K, V], entries map[K]V) error {
	if err := b.wipe(); err != nil {
		return err
	}

	names := assignNames(entries, b.namer, b.ext)
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for k, v := range entries {
		path := filepath.Join(b.root, names[k])
		g.Go(func() error {
			err := fsutil.WriteFile(b.fs, path, 0o600, func(w io.Writer) error {
				return b.codec.EncodeEntry(w, k, v)
			})
			if err != nil {
				batch.Fail(&store.OpError{Op: batch.Op(), Key: k, Path: path, Err: err})
			}
			return nil
		})
	}
	_ = g.Wait()

	b.logger.Debug("exported entry files", "dir", b.root, "entries", len(entries))

	return nil
}

// wipe removes entry files and leftover temporary files. Other files and
// subdirectories are left alone.
func (b *Backend[K, V]) wipe() error {
	infos, err := vfs.ReadDir(b.fs, b.root)
	if err != nil {
		return fmt.Errorf("failed reading store directory: %w", err)
	}

	for _, fi := range infos {
		if fi.IsDir() || !(b.isEntryFile(fi.Name()) || fsutil.IsTemp(fi.Name())) {
			continue
		}
		path := filepath.Join(b.root, fi.Name())
		if err := b.fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed removing entry file '%s': %w", path, err)
		}
	}

	return nil
}

func (b *Backend[K, V]) entryFiles() ([]string, error) {
	infos, err := vfs.ReadDir(b.fs, b.root)
	if err != nil {
		return nil, fmt.Errorf("failed reading store directory: %w", err)
	}

	files := make([]string, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() || !b.isEntryFile(fi.Name()) {
			continue
		}
		files = append(files, filepath.Join(b.root, fi.Name()))
	}

	return files, nil
}

func (b *Backend[K, V]) isEntryFile(name string) bool {
	return !fsutil.IsTemp(name) && filepath.Ext(name) == "."+b.ext
}

func (b *Backend[K, V]) readEntry(path string) (key K, value V, err error) {
	f, err := b.fs.Open(path)
	if err != nil {
		return key, value, err
	}
	defer f.Close()

	err = store.Catch(func() error {
		key, value, err = b.codec.DecodeEntry(bufio.NewReader(f))
		return err
	})
	if err != nil {
		return key, value, fmt.Errorf("failed decoding entry file: %w", err)
	}

	return key, value, nil
}

func (b *Backend[K, V]) waitPrevious() {
	if err := b.writer.Wait(); err != nil {
		b.logger.Debug("previous background export failed", "dir", b.root, "error", err)
	}
}

func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	}

	return false
}
