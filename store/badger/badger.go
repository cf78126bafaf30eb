// Package badger implements a store backend on top of the Badger key-value
// database.
package badger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"go.hackfix.me/stash/store"
	"go.hackfix.me/stash/store/codec"
)

var entryPrefix = []byte("entry/")

// Option is a function that allows configuring the backend.
type Option func(*options)

type options struct {
	encKey   []byte
	inMemory bool
}

// WithEncryptionKey enables encryption at rest. The key must be 16, 24 or 32
// bytes long, for AES-128, AES-192 or AES-256 respectively.
func WithEncryptionKey(key []byte) Option {
	return func(o *options) {
		o.encKey = key
	}
}

// WithInMemory keeps the database in memory only.
func WithInMemory(inMemory bool) Option {
	return func(o *options) {
		o.inMemory = inMemory
	}
}

// Backend stores each entry as a Badger key under a common prefix.
type Backend[K comparable, V any] struct {
	codec    codec.EntryCodec[K, V]
	encKey   []byte
	inMemory bool

	db     *badger.DB
	path   string
	logger *slog.Logger
}

var _ store.Backend[string, any] = &Backend[string, any]{}

// New returns a new Badger backend that encodes entries in the given format.
// If f is nil, entries are encoded with gob.
func New[K comparable, V any](f codec.Format, opts ...Option) *Backend[K, V] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if f == nil {
		f = codec.Gob
	}

	return &Backend[K, V]{
		codec: codec.ForEntry[K, V](f), encKey: o.encKey, inMemory: o.inMemory,
	}
}

// Init opens the database in the directory <root>/<name>. Badger reads and
// writes the OS filesystem directly, so on a memory filesystem the database
// is kept in memory.
func (b *Backend[K, V]) Init(loc store.Location) error {
	b.logger = loc.Logger

	var opts badger.Options
	if b.inMemory || loc.FS.Name() == "MemoryFileSystem" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		b.path = loc.Path(loc.Name)
		opts = badger.DefaultOptions(b.path)
		if len(b.encKey) > 0 {
			opts = opts.WithEncryptionKey(b.encKey).WithIndexCacheSize(10 << 20)
		}
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed opening Badger database: %w", err)
	}
	b.db = db

	return nil
}

// Import reads all entries from the database. Values that fail to decode are
// reported and skipped.
func (b *Backend[K, V]) Import(batch *store.Batch[K, V]) error {
	var imported int
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(entryPrefix); it.ValidForPrefix(entryPrefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var (
					key   K
					value V
				)
				err := store.Catch(func() (err error) {
					key, value, err = b.codec.DecodeEntry(bytes.NewReader(val))
					return err
				})
				if err != nil {
					return fmt.Errorf("failed decoding item %x: %w", item.Key(), err)
				}
				batch.Put(key, value)
				imported++
				return nil
			})
			if err != nil {
				batch.Fail(&store.OpError{Op: batch.Op(), Path: b.path, Err: err})
			}
		}

		return nil
	})
	if err != nil {
		return &store.OpError{Op: batch.Op(), Path: b.path, Err: err}
	}

	b.logger.Debug("imported Badger entries", "path", b.path, "entries", imported)

	return nil
}

// Export replaces all entries in the database. Entries that fail to encode
// are reported and skipped.
func (b *Backend[K, V]) Export(batch *store.Batch[K, V]) error {
	entries := batch.Entries()

	if err := b.db.DropPrefix(entryPrefix); err != nil {
		return &store.OpError{Op: batch.Op(), Path: b.path,
			Err: fmt.Errorf("failed removing previous entries: %w", err)}
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	var (
		seq uint64
		buf bytes.Buffer
	)
	for k, v := range entries {
		buf.Reset()
		err := store.Catch(func() error { return b.codec.EncodeEntry(&buf, k, v) })
		if err != nil {
			batch.Fail(&store.OpError{Op: batch.Op(), Key: k, Path: b.path, Err: err})
			continue
		}
		seq++
		// WriteBatch retains the value, so it can't share the buffer.
		val := bytes.Clone(buf.Bytes())
		if err := wb.Set(entryKey(seq), val); err != nil {
			return &store.OpError{Op: batch.Op(), Path: b.path, Err: err}
		}
	}

	if err := wb.Flush(); err != nil {
		return &store.OpError{Op: batch.Op(), Path: b.path, Err: err}
	}

	b.logger.Debug("exported Badger entries", "path", b.path, "entries", seq)

	return nil
}

// Close closes the database.
func (b *Backend[K, V]) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func entryKey(seq uint64) []byte {
	key := make([]byte, 0, len(entryPrefix)+8)
	key = append(key, entryPrefix...)
	return binary.BigEndian.AppendUint64(key, seq)
}
