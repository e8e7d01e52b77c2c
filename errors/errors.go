package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a pipeline failure.
// Codes implement error so callers can match them with errors.Is.
type ErrorCode string

const (
	// ErrConfiguration indicates the bundled meta-transform is missing, unreadable or malformed.
	// Retrying cannot succeed without redeploying the library.
	ErrConfiguration ErrorCode = "weffo-configuration"
	// ErrParse indicates a view, model, resolved or generated document is not well-formed.
	ErrParse ErrorCode = "weffo-parse"
	// ErrTransform indicates the transform engine failed while compiling or running a stylesheet.
	ErrTransform ErrorCode = "weffo-transform"
	// ErrResolver indicates a caller-supplied resolver failed.
	ErrResolver ErrorCode = "weffo-resolver"
)

// Error returns the code string.
func (c ErrorCode) Error() string {
	return string(c)
}

// Stage names the pipeline stage that raised an error.
type Stage string

const (
	// StageMetaLoad is the construction of the bundled meta-transform.
	StageMetaLoad Stage = "meta-load"
	// StageMetaApply is the run of the meta-transform over a view prototype.
	StageMetaApply Stage = "meta-apply"
	// StageRecompile is the reparse and compilation of the generated transform source.
	StageRecompile Stage = "recompile"
	// StageExecute is the run of a compiled template over model data.
	StageExecute Stage = "execute"
	// StageOutput is the delivery of a finished result tree to the caller's sink.
	StageOutput Stage = "output"
)

// Error describes a failure with its code, the stage that raised it and the
// input document involved.
//
//nolint:errname // public API name.
type Error struct {
	Code    ErrorCode
	Stage   Stage
	Input   string
	Message string
	Line    int
	Column  int
	Err     error
}

// Error formats the failure for display.
func (e *Error) Error() string {
	if e == nil {
		return "weffo error <nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Code)
	if e.Stage != "" {
		fmt.Fprintf(&b, " %s", e.Stage)
	}
	if e.Input != "" {
		fmt.Fprintf(&b, " %s", e.Input)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d, column %d)", e.Line, e.Column)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the code and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{e.Code}
	}
	return []error{e.Code, e.Err}
}

// New builds an Error for stage and input wrapping cause.
// Line and column are taken from the cause when it reports a position.
func New(code ErrorCode, stage Stage, input string, cause error) *Error {
	e := &Error{Code: code, Stage: stage, Input: input, Err: cause}
	var pos interface{ Position() (int, int) }
	if cause != nil && errors.As(cause, &pos) {
		e.Line, e.Column = pos.Position()
	}
	return e
}

// Newf builds an Error with a formatted message and no cause.
func Newf(code ErrorCode, stage Stage, input, format string, args ...any) *Error {
	return &Error{Code: code, Stage: stage, Input: input, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts the outermost Error from err.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// StageOf reports the stage recorded on err, or "" when err carries none.
func StageOf(err error) Stage {
	e, ok := AsError(err)
	if !ok {
		return ""
	}
	return e.Stage
}

// CodeOf reports the code recorded on the outermost Error in err.
func CodeOf(err error) ErrorCode {
	e, ok := AsError(err)
	if !ok {
		return ""
	}
	return e.Code
}
