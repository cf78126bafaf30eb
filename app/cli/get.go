package cli

import (
	"errors"
	"fmt"

	actx "go.hackfix.me/stash/app/context"
	aerrors "go.hackfix.me/stash/app/errors"
	"go.hackfix.me/stash/store"
)

// The Get command retrieves and prints the value of a key.
type Get struct {
	Key string `arg:"" help:"The unique key associated with the value."`
}

// Run the get command.
func (c *Get) Run(appCtx *actx.Context, g *Globals) (err error) {
	s, err := openStore(appCtx, g.storeConfig())
	if err != nil {
		return err
	}
	defer func() { err = closeStore(s, err) }()

	val, err := s.Get(c.Key)
	if errors.Is(err, store.ErrNotFound) {
		return aerrors.NewRuntimeError(
			fmt.Sprintf("key '%s' doesn't exist", c.Key), nil,
			"Run 'stash ls' to list the stored keys.")
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(appCtx.Stdout, "%s\n", val)

	return nil
}
