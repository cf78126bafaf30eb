// Package errors contains the error types returned by CLI commands.
package errors

// WithCause is an error that wraps a lower level cause.
type WithCause interface{ Cause() error }

// WithHint is an error that suggests how the user can resolve it.
type WithHint interface{ Hint() string }

// Runtime is an error that happened while running a command, as opposed to
// an error parsing the command line.
type Runtime struct {
	msg   string
	cause error
	hint  string
}

// NewRuntimeError returns a new Runtime error.
func NewRuntimeError(msg string, cause error, hint string) Runtime {
	return Runtime{msg: msg, cause: cause, hint: hint}
}

func (e Runtime) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e Runtime) Cause() error {
	return e.cause
}

func (e Runtime) Unwrap() error {
	return e.cause
}

func (e Runtime) Hint() string {
	return e.hint
}
