package store

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrDisposed is returned when operating on a disposed store.
	ErrDisposed = errors.New("store is disposed")
	// ErrNotFound is returned when a key doesn't exist in the store.
	ErrNotFound = errors.New("key not found")
	// ErrKeyExists is returned by Add when the key is already present.
	ErrKeyExists = errors.New("key already exists")
	// ErrEntrySkipped marks an entry that was read successfully, but had a
	// nil key or value, and was not inserted into the store.
	ErrEntrySkipped = errors.New("entry has a nil key or value")
)

// OpError records a failure that happened during a bulk operation.
type OpError struct {
	Op   Status
	Key  any    // nil for failures that don't concern a single entry
	Path string // physical location, if any
	Err  error
}

func (e *OpError) Error() string {
	var sb strings.Builder
	sb.WriteString(opVerb(e.Op))
	if e.Key != nil {
		fmt.Fprintf(&sb, " entry '%v'", e.Key)
	}
	if e.Path != "" {
		fmt.Fprintf(&sb, " (%s)", e.Path)
	}
	sb.WriteString(": ")
	if e.Err != nil {
		sb.WriteString(e.Err.Error())
	} else {
		sb.WriteString("unknown error")
	}
	return sb.String()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Verb returns the name of the bulk operation running in phase s, e.g.
// "import" for StatusImporting.
func (s Status) Verb() string {
	return opVerb(s)
}

func opVerb(op Status) string {
	switch op {
	case StatusImporting:
		return "import"
	case StatusExporting:
		return "export"
	case StatusCopying:
		return "copy"
	case StatusInitializing:
		return "init"
	default:
		return op.String()
	}
}

// errorSink accumulates the failures of bulk operations. Each kind of
// operation has its own generation, bumped when an attempt of that kind
// starts, so that late reports from background writes of an older attempt
// don't pollute the current one.
type errorSink struct {
	gens    map[Status]uint64
	records []errorRecord
}

type errorRecord struct {
	op  Status
	err error
}

// reset drops the failures of op, and starts a new generation for it.
func (s *errorSink) reset(op Status) uint64 {
	if s.gens == nil {
		s.gens = make(map[Status]uint64)
	}
	s.gens[op]++
	s.records = slices.DeleteFunc(s.records, func(r errorRecord) bool {
		return r.op == op
	})
	return s.gens[op]
}

// clear drops all failures, and invalidates every pending generation.
func (s *errorSink) clear() {
	for op := range s.gens {
		s.gens[op]++
	}
	s.records = nil
}

func (s *errorSink) add(op Status, gen uint64, err error) bool {
	if gen != s.gens[op] {
		return false
	}
	s.records = append(s.records, errorRecord{op: op, err: err})
	return true
}

// errors returns the recorded failures of op, or of every operation if op is
// nil.
func (s *errorSink) errors(op *Status) []error {
	var errs []error
	for _, r := range s.records {
		if op == nil || r.op == *op {
			errs = append(errs, r.err)
		}
	}
	return errs
}
