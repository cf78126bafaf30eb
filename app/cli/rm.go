package cli

import (
	"fmt"

	actx "go.hackfix.me/stash/app/context"
	aerrors "go.hackfix.me/stash/app/errors"
	"go.hackfix.me/stash/store"
)

// The Rm command deletes keys.
type Rm struct {
	Keys []string `arg:"" help:"The keys to delete."`

	Force bool `short:"f" help:"Ignore keys that don't exist."`
}

// Run the rm command.
func (c *Rm) Run(appCtx *actx.Context, g *Globals) (err error) {
	s, err := openStore(appCtx, g.storeConfig())
	if err != nil {
		return err
	}
	defer func() { err = closeStore(s, err) }()

	for _, key := range c.Keys {
		if !s.Remove(key) && !c.Force {
			return aerrors.NewRuntimeError(
				fmt.Sprintf("key '%s' doesn't exist", key), nil,
				"Use --force to ignore missing keys.")
		}
	}

	return checkResult(s, store.StatusExporting, s.Export())
}
