package cli

import (
	"errors"
	"fmt"

	actx "go.hackfix.me/stash/app/context"
	aerrors "go.hackfix.me/stash/app/errors"
	"go.hackfix.me/stash/crypto"
	"go.hackfix.me/stash/store"
	"go.hackfix.me/stash/store/badger"
	"go.hackfix.me/stash/store/codec"
	"go.hackfix.me/stash/store/dir"
	"go.hackfix.me/stash/store/file"
	"go.hackfix.me/stash/store/sqlite"
)

// Store is the store managed by the CLI.
type Store = store.Store[string, string]

// storeConfig describes where a store is kept and how it's encoded.
type storeConfig struct {
	dataDir       string
	name          string
	backend       string
	format        string
	ext           string
	async         bool
	encryptionKey string
}

func (g *Globals) storeConfig() storeConfig {
	return storeConfig{
		dataDir:       g.DataDir,
		name:          g.Name,
		backend:       g.Backend,
		format:        g.Format,
		ext:           g.Ext,
		async:         g.Async,
		encryptionKey: g.EncryptionKey,
	}
}

func newBackend(cfg storeConfig) (store.Backend[string, string], error) {
	f, err := codec.FormatByName(cfg.format)
	if err != nil {
		return nil, err
	}
	if cfg.encryptionKey != "" {
		key, err := crypto.DecodeHexKey(cfg.encryptionKey)
		if err != nil {
			return nil, aerrors.NewRuntimeError("invalid encryption key", err,
				"The key must be 64 hexadecimal characters.")
		}
		f = codec.Sealed(f, key)
	}

	if cfg.async && cfg.backend != "file" && cfg.backend != "dir" {
		return nil, fmt.Errorf("the %s backend doesn't support async writes", cfg.backend)
	}

	switch cfg.backend {
	case "file":
		opts := []file.Option{file.WithAsync(cfg.async)}
		if cfg.ext != "" {
			opts = append(opts, file.WithExtension(cfg.ext))
		}
		return file.New(codec.ForDocument[string, string](f), opts...), nil
	case "dir":
		opts := []dir.Option{dir.WithAsync(cfg.async)}
		if cfg.ext != "" {
			opts = append(opts, dir.WithExtension(cfg.ext))
		}
		return dir.New(codec.ForEntry[string, string](f), opts...), nil
	case "badger":
		return badger.New[string, string](f), nil
	case "sqlite":
		return sqlite.New[string, string](f), nil
	default:
		return nil, fmt.Errorf("unknown backend '%s'", cfg.backend)
	}
}

// openStore creates the store described by cfg, and imports its entries.
func openStore(appCtx *actx.Context, cfg storeConfig) (*Store, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	opts := []store.Option{
		store.WithName(cfg.name),
		store.WithFS(appCtx.FS),
		store.WithLogger(appCtx.Logger),
	}
	if appCtx.Metrics != nil {
		opts = append(opts, store.WithMetrics(appCtx.Metrics))
	}

	s, err := store.New[string, string](cfg.dataDir, backend, opts...)
	if err != nil {
		return nil, aerrors.NewRuntimeError(
			fmt.Sprintf("failed opening store '%s'", cfg.name), err, "")
	}

	if err = checkResult(s, store.StatusImporting, s.Import()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// closeStore disposes of the store, waiting for any background write.
func closeStore(s *Store, err error) error {
	return errors.Join(err, s.Close())
}

// checkResult converts the result of the bulk operation op to an error.
func checkResult(s *Store, op store.Status, res store.Result) error {
	switch res {
	case store.ResultOK:
		return nil
	case store.ResultBusy:
		return aerrors.NewRuntimeError(
			fmt.Sprintf("store '%s' is busy", s.Name()), nil, "Try again later.")
	case store.ResultNull:
		return store.ErrDisposed
	default:
		cause := errors.Join(s.ErrorsOf(op)...)
		hint := ""
		if errors.Is(cause, crypto.ErrDecrypt) {
			hint = "Make sure the encryption key is the one the store was written with."
		}
		return aerrors.NewRuntimeError(
			fmt.Sprintf("failed to %s store '%s'", op.Verb(), s.Name()), cause, hint)
	}
}
