package xslt

import (
	"errors"
	"fmt"

	"github.com/jacoelho/weffo/pkg/xmltree"
)

var (
	// ErrCompile reports a stylesheet that cannot be compiled.
	ErrCompile = errors.New("invalid stylesheet")
	// ErrNotNamespaceAware reports a stylesheet tree built without namespace
	// processing. Such a tree has no XSLT elements, only qualified names.
	ErrNotNamespaceAware = errors.New("stylesheet must be parsed namespace-aware")
	// ErrUnsupported reports an XSLT element outside the supported subset.
	ErrUnsupported = errors.New("unsupported xslt element")
)

func compileErrorf(el *xmltree.Node, format string, args ...any) error {
	where := "stylesheet"
	if el != nil {
		where = "<" + el.Name.String() + ">"
	}
	return fmt.Errorf("%w: %s: %s", ErrCompile, where, fmt.Sprintf(format, args...))
}

func wrapCompile(el *xmltree.Node, err error) error {
	return fmt.Errorf("%w: <%s>: %w", ErrCompile, el.Name, err)
}

// Error is a dynamic error raised by an instruction while a transform runs.
//
//nolint:errname // public API name.
type Error struct {
	Instruction string
	Err         error
}

func (e *Error) Error() string {
	return "xslt: " + e.Instruction + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// runtimeError attaches the instruction to err unless it already carries one.
func runtimeError(instruction string, err error) error {
	if err == nil {
		return nil
	}
	var xe *Error
	if errors.As(err, &xe) {
		return err
	}
	var te *TerminateError
	if errors.As(err, &te) {
		return err
	}
	return &Error{Instruction: instruction, Err: err}
}

func runtimeErrorf(instruction, format string, args ...any) error {
	return &Error{Instruction: instruction, Err: fmt.Errorf(format, args...)}
}

// TerminateError is returned when xsl:message terminate="yes" runs.
type TerminateError struct {
	Message string
}

func (e *TerminateError) Error() string {
	return "xslt: terminated by xsl:message: " + e.Message
}
