package interp

import (
	"errors"
	"fmt"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Error kinds raised by interpreter operations.
const (
	ImportError    = "ImportError"
	AttributeError = "AttributeError"
	SyntaxError    = "SyntaxError"
	RuntimeError   = "RuntimeError"
	TypeError      = "TypeError"
)

// Error is a condition raised inside the interpreter.
type Error struct {
	Kind string
	Msg  string

	// Text is what printing the error shows: a traceback for evaluation
	// errors, the positioned message for syntax errors.
	Text string

	// Stack lists the active calls when the error was raised, outermost
	// first. Syntax errors have a single frame at the offending position.
	Stack []Frame

	Err error
}

// Frame is one call-stack entry.
type Frame struct {
	Function string
	File     string
	Line     int
	Col      int
}

func frameAt(function string, pos syntax.Position) Frame {
	return Frame{Function: function, File: pos.Filename(), Line: int(pos.Line), Col: int(pos.Col)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// newError classifies err as raised by the interpreter.
func newError(kind string, err error) *Error {
	var ie *Error
	if errors.As(err, &ie) {
		return ie
	}

	e := &Error{Kind: kind, Msg: err.Error(), Text: err.Error(), Err: err}

	var evalErr *starlark.EvalError
	var syntaxErr syntax.Error
	var resolveErrs resolve.ErrorList
	switch {
	case errors.As(err, &evalErr):
		e.Msg = evalErr.Msg
		e.Text = evalErr.Backtrace()
		for _, fr := range evalErr.CallStack {
			e.Stack = append(e.Stack, frameAt(fr.Name, fr.Pos))
		}
	case errors.As(err, &syntaxErr):
		e.Kind = SyntaxError
		e.Msg = syntaxErr.Msg
		e.Stack = []Frame{frameAt("<toplevel>", syntaxErr.Pos)}
	case errors.As(err, &resolveErrs) && len(resolveErrs) > 0:
		e.Kind = SyntaxError
		e.Msg = resolveErrs[0].Msg
		e.Stack = []Frame{frameAt("<toplevel>", resolveErrs[0].Pos)}
	}
	return e
}

func errorf(kind, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Msg: msg, Text: kind + ": " + msg}
}
