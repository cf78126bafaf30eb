// Package sqlite implements a store backend on top of an embedded SQLite
// database.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	_ "github.com/glebarez/go-sqlite"

	"go.hackfix.me/stash/store"
	"go.hackfix.me/stash/store/codec"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Backend stores each entry as a row of the entries table.
type Backend[K comparable, V any] struct {
	codec codec.EntryCodec[K, V]

	ctx        context.Context
	db         *sql.DB
	path       string
	logger     *slog.Logger
	migrations []*migration
}

var _ store.Backend[string, any] = &Backend[string, any]{}

// New returns a new SQLite backend that encodes entries in the given format.
// If f is nil, entries are encoded with gob.
func New[K comparable, V any](f codec.Format) *Backend[K, V] {
	if f == nil {
		f = codec.Gob
	}
	return &Backend[K, V]{codec: codec.ForEntry[K, V](f)}
}

// Init opens the database file <root>/<name>.db, and brings its schema up to
// date. On a memory filesystem the database is kept in memory.
func (b *Backend[K, V]) Init(loc store.Location) error {
	b.ctx = context.Background()
	b.logger = loc.Logger

	dsn := ":memory:"
	if loc.FS.Name() != "MemoryFileSystem" {
		b.path = loc.Path(fmt.Sprintf("%s.db", loc.Name))
		dsn = b.path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed opening SQLite database: %w", err)
	}
	// A single connection serializes writers, and keeps an in-memory
	// database alive.
	db.SetMaxOpenConns(1)
	b.db = db

	b.migrations, err = loadMigrations(migrationsFS)
	if err == nil {
		err = b.Migrate(MigrationUp, "all")
	}
	if err != nil {
		_ = db.Close()
		return err
	}

	return nil
}

// Migrate applies or rolls back schema migrations. to can either be a
// migration name, or "all".
func (b *Backend[K, V]) Migrate(typ MigrationType, to string) error {
	return runMigrations(b.ctx, b.db, b.migrations, typ, to, b.logger)
}

// Import reads all rows. Rows that fail to decode are reported and skipped.
func (b *Backend[K, V]) Import(batch *store.Batch[K, V]) error {
	rows, err := b.db.QueryContext(b.ctx, `SELECT id, data FROM entries ORDER BY id;`)
	if err != nil {
		return b.opError(batch, fmt.Errorf("failed querying entries: %w", err))
	}
	defer rows.Close()

	var imported int
	for rows.Next() {
		var (
			id   int64
			data []byte
		)
		if err = rows.Scan(&id, &data); err != nil {
			return b.opError(batch, fmt.Errorf("failed reading entry: %w", err))
		}
		var (
			key   K
			value V
		)
		err = store.Catch(func() (err error) {
			key, value, err = b.codec.DecodeEntry(bytes.NewReader(data))
			return err
		})
		if err != nil {
			batch.Fail(b.opError(batch, fmt.Errorf("failed decoding row %d: %w", id, err)))
			continue
		}
		batch.Put(key, value)
		imported++
	}
	if err = rows.Err(); err != nil {
		return b.opError(batch, err)
	}

	b.logger.Debug("imported SQLite rows", "path", b.path, "entries", imported)

	return nil
}

// Export replaces all rows in a single transaction. Entries that fail to
// encode are reported and skipped.
func (b *Backend[K, V]) Export(batch *store.Batch[K, V]) error {
	entries := batch.Entries()

	tx, err := b.db.BeginTx(b.ctx, nil)
	if err != nil {
		return b.opError(batch, fmt.Errorf("failed starting transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(b.ctx, `DELETE FROM entries;`); err != nil {
		return b.opError(batch, fmt.Errorf("failed removing previous entries: %w", err))
	}

	stmt, err := tx.PrepareContext(b.ctx, `INSERT INTO entries (data) VALUES ($1);`)
	if err != nil {
		return b.opError(batch, err)
	}
	defer stmt.Close()

	var (
		exported int
		buf      bytes.Buffer
	)
	for k, v := range entries {
		buf.Reset()
		err = store.Catch(func() error { return b.codec.EncodeEntry(&buf, k, v) })
		if err != nil {
			batch.Fail(&store.OpError{Op: batch.Op(), Key: k, Path: b.path, Err: err})
			continue
		}
		if _, err = stmt.ExecContext(b.ctx, buf.Bytes()); err != nil {
			return b.opError(batch, fmt.Errorf("failed inserting entry '%v': %w", k, err))
		}
		exported++
	}

	if err = tx.Commit(); err != nil {
		return b.opError(batch, fmt.Errorf("failed committing transaction: %w", err))
	}

	b.logger.Debug("exported SQLite rows", "path", b.path, "entries", exported)

	return nil
}

// Close closes the database.
func (b *Backend[K, V]) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *Backend[K, V]) opError(batch *store.Batch[K, V], err error) *store.OpError {
	return &store.OpError{Op: batch.Op(), Path: b.path, Err: err}
}
