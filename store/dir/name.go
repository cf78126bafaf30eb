package dir

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// maxNameLen is the maximum length of an entry file name, without the
// extension and collision suffix.
const maxNameLen = 128

// Namer returns the base name of the file an entry is written to. The result
// is sanitized before use, so it may contain any characters.
type Namer func(key, value any) string

// DefaultNamer names entries after the text of their key and value.
func DefaultNamer(key, value any) string {
	return fmt.Sprintf("%v_%v", key, value)
}

func sanitize(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}

	// Avoid hidden files, which would be confused with temporary files.
	return strings.TrimLeft(sb.String(), ".")
}

func entryHash(key, value any) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(fmt.Sprintf("%#v\x00%#v", key, value)))
}

// assignNames maps every key to a unique file name. Entries whose sanitized
// names collide, or were truncated, get a hash of the entry as a suffix.
func assignNames[K comparable, V any](entries map[K]V, namer Namer, ext string) map[K]string {
	base := make(map[K]string, len(entries))
	groups := make(map[string]int, len(entries))
	for k, v := range entries {
		n := sanitize(namer(k, v))
		if n == "" {
			n = "entry"
		}
		if len(n) > maxNameLen {
			n = n[:maxNameLen]
			groups[n]++
		}
		base[k] = n
		groups[n]++
	}

	names := make(map[K]string, len(entries))
	used := make(map[string]struct{}, len(entries))
	for k, n := range base {
		if groups[n] > 1 {
			n = fmt.Sprintf("%s-%s", n, entryHash(k, entries[k]))
		}
		name := fmt.Sprintf("%s.%s", n, ext)
		for i := 2; ; i++ {
			if _, ok := used[name]; !ok {
				break
			}
			name = fmt.Sprintf("%s-%d.%s", n, i, ext)
		}
		used[name] = struct{}{}
		names[k] = name
	}

	return names
}
