// Package file implements a store backend that persists the whole store in a
// single document.
package file

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/stash/store"
	"go.hackfix.me/stash/store/codec"
	"go.hackfix.me/stash/store/internal/fsutil"
)

// DefaultExtension is the extension of the store document.
const DefaultExtension = "bin"

// Option is a function that allows configuring the backend.
type Option func(*options)

type options struct {
	ext   string
	async bool
}

// WithExtension sets the extension of the store document.
func WithExtension(ext string) Option {
	return func(o *options) {
		o.ext = strings.TrimPrefix(ext, ".")
	}
}

// WithAsync makes exports write the document in the background. Export then
// returns as soon as the entries are copied, and the next Export, Import or
// Close waits for the write to complete.
func WithAsync(async bool) Option {
	return func(o *options) {
		o.async = async
	}
}

// Backend stores all entries in the file <root>/<name>.<ext>.
type Backend[K comparable, V any] struct {
	codec codec.DocumentCodec[K, V]
	ext   string
	async bool

	fs     vfs.FileSystem
	path   string
	logger *slog.Logger
	writer fsutil.AsyncWriter
}

var _ store.Backend[string, any] = &Backend[string, any]{}

// New returns a new single file backend. If c is nil, entries are encoded
// with gob.
func New[K comparable, V any](c codec.DocumentCodec[K, V], opts ...Option) *Backend[K, V] {
	o := &options{ext: DefaultExtension}
	for _, opt := range opts {
		opt(o)
	}
	if c == nil {
		c = codec.ForDocument[K, V](codec.Gob)
	}

	return &Backend[K, V]{codec: c, ext: o.ext, async: o.async}
}

// Init resolves the document path and creates an empty document if it doesn't
// exist.
func (b *Backend[K, V]) Init(loc store.Location) error {
	b.fs = loc.FS
	b.logger = loc.Logger
	b.path = loc.Path(fmt.Sprintf("%s.%s", loc.Name, b.ext))

	_, err := b.fs.Stat(b.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	f, err := b.fs.OpenFile(b.path, os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("failed creating store file: %w", err)
	}

	return f.Close()
}

// Path returns the path of the store document.
func (b *Backend[K, V]) Path() string {
	return b.path
}

// Import decodes the document and merges its entries into the store. A
// missing or empty document is not an error.
func (b *Backend[K, V]) Import(batch *store.Batch[K, V]) error {
	b.waitPrevious()

	fi, err := b.fs.Stat(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return b.opError(batch, err)
	}
	if fi.Size() == 0 {
		return nil
	}

	f, err := b.fs.Open(b.path)
	if err != nil {
		return b.opError(batch, err)
	}
	defer f.Close()

	entries, err := b.codec.Decode(bufio.NewReader(f))
	if err != nil {
		return b.opError(batch, fmt.Errorf("failed decoding store file: %w", err))
	}
	batch.PutAll(entries)

	b.logger.Debug("imported store file", "path", b.path, "entries", len(entries))

	return nil
}

// Export encodes the store entries and replaces the document.
func (b *Backend[K, V]) Export(batch *store.Batch[K, V]) error {
	b.waitPrevious()

	entries := batch.Entries()
	if !b.async {
		if err := b.write(entries); err != nil {
			return b.opError(batch, err)
		}
		return nil
	}

	b.writer.Go(func() error {
		err := b.write(entries)
		if err != nil {
			batch.Fail(b.opError(batch, err))
		}
		return err
	})

	return nil
}

// Wait blocks until the last background write completes, and returns its
// error.
func (b *Backend[K, V]) Wait() error {
	return b.writer.Wait()
}

// Close waits for any background write to complete.
func (b *Backend[K, V]) Close() error {
	return b.writer.Wait()
}

func (b *Backend[K, V]) write(entries map[K]V) error {
	err := fsutil.WriteFile(b.fs, b.path, 0o600, func(w io.Writer) error {
		return b.codec.Encode(w, entries)
	})
	if err != nil {
		return err
	}
	b.logger.Debug("exported store file", "path", b.path, "entries", len(entries))

	return nil
}

// waitPrevious blocks until an in-flight background write completes. Its
// failure, if any, was already reported by the export that started it.
func (b *Backend[K, V]) waitPrevious() {
	if err := b.writer.Wait(); err != nil {
		b.logger.Debug("previous background write failed", "path", b.path, "error", err)
	}
}

func (b *Backend[K, V]) opError(batch *store.Batch[K, V], err error) *store.OpError {
	return &store.OpError{Op: batch.Op(), Path: b.path, Err: err}
}
