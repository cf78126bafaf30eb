package store

import "sync/atomic"

// Status is the lifecycle phase of a Store.
type Status int32

// Store lifecycle phases.
const (
	StatusIdle Status = iota
	StatusInitializing
	StatusImporting
	StatusExporting
	StatusCopying
	StatusDisposed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusInitializing:
		return "initializing"
	case StatusImporting:
		return "importing"
	case StatusExporting:
		return "exporting"
	case StatusCopying:
		return "copying"
	case StatusDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a bulk operation.
type Result int

// Bulk operation results.
const (
	// ResultNull is returned when no operation was attempted, i.e. on a
	// disposed store.
	ResultNull Result = iota
	// ResultBusy is returned when another bulk operation is in progress.
	ResultBusy
	// ResultError is returned when the operation failed as a whole. The
	// failure is available in Store.Errors.
	ResultError
	// ResultOK is returned when the operation completed. Individual entries
	// may still have failed; check Store.HasErrors.
	ResultOK
)

func (r Result) String() string {
	switch r {
	case ResultNull:
		return "null"
	case ResultBusy:
		return "busy"
	case ResultError:
		return "error"
	case ResultOK:
		return "ok"
	default:
		return "unknown"
	}
}

// statusMachine guards lifecycle transitions. Admission is a single
// compare-and-swap, so concurrent callers never wait on each other.
type statusMachine struct {
	v atomic.Int32
}

func (m *statusMachine) load() Status {
	return Status(m.v.Load())
}

// admit moves the machine from Idle to op. It reports the status observed
// when the transition was refused.
func (m *statusMachine) admit(op Status) (Status, bool) {
	if m.v.CompareAndSwap(int32(StatusIdle), int32(op)) {
		return op, true
	}
	return m.load(), false
}

// release returns the machine from op to Idle. It's a no-op if the store was
// disposed in the meantime.
func (m *statusMachine) release(op Status) {
	m.v.CompareAndSwap(int32(op), int32(StatusIdle))
}

// dispose moves the machine to Disposed from any state, and reports whether
// this call made the transition.
func (m *statusMachine) dispose() bool {
	for {
		cur := m.v.Load()
		if Status(cur) == StatusDisposed {
			return false
		}
		if m.v.CompareAndSwap(cur, int32(StatusDisposed)) {
			return true
		}
	}
}
