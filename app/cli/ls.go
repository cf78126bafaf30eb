package cli

import (
	"fmt"
	"slices"
	"strings"

	actx "go.hackfix.me/stash/app/context"
)

// The Ls command prints keys.
type Ls struct {
	KeyPrefix string `arg:"" optional:"" help:"An optional key prefix."`

	Values bool `short:"v" help:"Print values next to keys."`
}

// Run the ls command.
func (c *Ls) Run(appCtx *actx.Context, g *Globals) (err error) {
	s, err := openStore(appCtx, g.storeConfig())
	if err != nil {
		return err
	}
	defer func() { err = closeStore(s, err) }()

	entries := s.Snapshot()
	keys := make([]string, 0, len(entries))
	for key := range entries {
		if strings.HasPrefix(key, c.KeyPrefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	for _, key := range keys {
		if c.Values {
			fmt.Fprintf(appCtx.Stdout, "%s\t%s\n", key, entries[key])
		} else {
			fmt.Fprintf(appCtx.Stdout, "%s\n", key)
		}
	}

	return nil
}
