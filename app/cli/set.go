package cli

import (
	actx "go.hackfix.me/stash/app/context"
	"go.hackfix.me/stash/store"
)

// The Set command stores the value of a key.
type Set struct {
	Key   string `arg:"" help:"The unique key that identifies the value."`
	Value string `arg:"" help:"The value."`

	NoOverwrite bool `help:"Fail if the key already exists."`
}

// Run the set command.
func (c *Set) Run(appCtx *actx.Context, g *Globals) (err error) {
	s, err := openStore(appCtx, g.storeConfig())
	if err != nil {
		return err
	}
	defer func() { err = closeStore(s, err) }()

	if c.NoOverwrite {
		err = s.Add(c.Key, c.Value)
	} else {
		err = s.Set(c.Key, c.Value)
	}
	if err != nil {
		return err
	}

	return checkResult(s, store.StatusExporting, s.Export())
}
