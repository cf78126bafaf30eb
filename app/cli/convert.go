package cli

import (
	actx "go.hackfix.me/stash/app/context"
	"go.hackfix.me/stash/store"
)

// The Convert command copies the store into another store, possibly with a
// different backend or format.
type Convert struct {
	ToDataDir       string `help:"Directory of the target store. Defaults to the source directory."`
	ToName          string `required:"" help:"Name of the target store."`
	ToBackend       string `enum:"file,dir,badger,sqlite" default:"file" help:"Backend of the target store. One of: ${enum}."`
	ToFormat        string `enum:"gob,json,yaml,toml" default:"json" help:"Encoding of the target store. One of: ${enum}."`
	ToExt           string `help:"Extension of the target store files."`
	ToEncryptionKey string `help:"Hex-encoded 32 byte key used to encrypt the target store."`

	Replace bool `help:"Remove existing entries of the target store, instead of merging into them."`
}

// Run the convert command.
func (c *Convert) Run(appCtx *actx.Context, g *Globals) (err error) {
	src, err := openStore(appCtx, g.storeConfig())
	if err != nil {
		return err
	}
	defer func() { err = closeStore(src, err) }()

	cfg := storeConfig{
		dataDir:       c.ToDataDir,
		name:          c.ToName,
		backend:       c.ToBackend,
		format:        c.ToFormat,
		ext:           c.ToExt,
		encryptionKey: c.ToEncryptionKey,
	}
	if cfg.dataDir == "" {
		cfg.dataDir = g.DataDir
	}

	dst, err := openStore(appCtx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = closeStore(dst, err) }()

	if c.Replace {
		dst.Clear()
	}
	if err = checkResult(dst, store.StatusCopying, dst.CopyFrom(src)); err != nil {
		return err
	}

	return checkResult(dst, store.StatusExporting, dst.Export())
}
