// Package errs carries the small set of failure kinds that the workspace
// reports and that both outer surfaces understand: the CLI turns a Code into
// an exit status and the MCP server puts it in a tool error payload.
package errs

import (
	"errors"
)

// Code names a failure kind. Its string form is what MCP clients see in the
// "code" field of a tool error.
type Code string

const (
	// InvalidArgument: blank input, nothing to update, bad flags. Exit 2.
	InvalidArgument Code = "invalid_argument"
	// NotFound: unknown note id. Exit 3.
	NotFound Code = "not_found"
	// FailedPrecondition: revision mismatch, illegal message transition, or a
	// workspace that is closing. Exit 4.
	FailedPrecondition Code = "failed_precondition"
	// Unavailable: the slot could not be read or written. Exit 5.
	Unavailable Code = "unavailable"
	// Internal is the fallback for anything uncoded. Exit 1.
	Internal Code = "internal"
)

var exitCodes = map[Code]int{
	InvalidArgument:    2,
	NotFound:           3,
	FailedPrecondition: 4,
	Unavailable:        5,
}

// Error pairs a Code with a message safe to show a user. Err keeps the
// underlying cause for logs and errors.Is.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap is New with a cause attached. Only message is shown to users.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

func asCoded(err error) (*Error, bool) {
	var coded *Error
	if err == nil || !errors.As(err, &coded) {
		return nil, false
	}
	return coded, true
}

// CodeOf finds the outermost coded error in err's chain. Nil, uncoded and
// empty-coded errors are Internal.
func CodeOf(err error) Code {
	if coded, ok := asCoded(err); ok && coded.Code != "" {
		return coded.Code
	}
	return Internal
}

// MessageOf is the text written to stderr or returned in a tool payload.
// Uncoded errors become "internal error" so storage paths and driver
// messages stay in the logs.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	if coded, ok := asCoded(err); ok && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// ExitCode is the process status inkpad exits with for code.
func ExitCode(code Code) int {
	if n, ok := exitCodes[code]; ok {
		return n
	}
	return 1
}
