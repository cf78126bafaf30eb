package store

import (
	"fmt"
	"sync/atomic"
)

// Names generates default store names of the form <prefix><N>, where N starts
// at 1 and increases monotonically. It's safe for concurrent use.
type Names struct {
	prefix string
	n      atomic.Uint64
}

// NewNames returns a name registry using the given prefix.
func NewNames(prefix string) *Names {
	return &Names{prefix: prefix}
}

// Next returns a new unique name.
func (n *Names) Next() string {
	return fmt.Sprintf("%s%d", n.prefix, n.n.Add(1))
}

// DefaultNames is the process-wide registry used by stores that don't have a
// name and weren't given a registry with WithNames.
var DefaultNames = NewNames("DataStore")
