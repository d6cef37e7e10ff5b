package bridge

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/chazu/starbridge/interp"
)

// Sentinel errors for fault classification.
var (
	// ErrContract indicates invalid arguments from the caller. Nothing was
	// attempted.
	ErrContract = errors.New("contract fault")

	// ErrBridge indicates that attaching, detaching, marshalling or merging
	// failed. The call was aborted; the bridge stays usable.
	ErrBridge = errors.New("bridge fault")

	// ErrExecution indicates that the fragment raised an error.
	ErrExecution = errors.New("execution fault")

	// ErrBootstrap indicates a one-time initialization problem. Bootstrap
	// faults are logged, never returned from Exec.
	ErrBootstrap = errors.New("bootstrap fault")
)

// Kind classifies a Fault.
type Kind uint8

const (
	KindContract Kind = iota + 1
	KindBridge
	KindExecution
	KindBootstrap
)

func (k Kind) String() string {
	switch k {
	case KindContract:
		return "contract"
	case KindBridge:
		return "bridge"
	case KindExecution:
		return "execution"
	case KindBootstrap:
		return "bootstrap"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindContract:
		return ErrContract
	case KindBridge:
		return ErrBridge
	case KindExecution:
		return ErrExecution
	case KindBootstrap:
		return ErrBootstrap
	}
	return nil
}

// Fault is a failure of a cross-call, reported to the host.
type Fault struct {
	Kind Kind

	// Op names the bridge step that failed, such as "attach" or "run".
	Op string

	// Message describes the failure.
	Message string

	// Location is the bridge source position that detected the failure.
	Location string

	// Type is the interpreter's error kind, when the interpreter raised.
	Type string

	// Traceback is the printed interpreter error, when there is one.
	Traceback string

	// Stack is the interpreter call stack at the point of failure.
	Stack []interp.Frame

	// Err is the underlying error, if any.
	Err error
}

func (f *Fault) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s fault in %s", f.Kind, f.Op)
	if f.Location != "" {
		fmt.Fprintf(&b, " (%s)", f.Location)
	}
	b.WriteString(": ")
	b.WriteString(f.Message)
	if f.Traceback != "" && f.Traceback != f.Message {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(f.Traceback, "\n"))
	}
	return b.String()
}

func (f *Fault) Unwrap() error { return f.Err }

// Is matches the sentinel of the fault's kind.
func (f *Fault) Is(target error) bool {
	return target == f.Kind.sentinel()
}

// newFault builds a fault located at the caller of its caller, which is
// always a Bridge method wrapping it.
func newFault(kind Kind, op string, err error) *Fault {
	f := &Fault{Kind: kind, Op: op, Err: err, Location: callerLocation(2)}
	if err == nil {
		return f
	}
	f.Message = err.Error()

	var ie *interp.Error
	if errors.As(err, &ie) {
		f.Message = ie.Msg
		f.Type = ie.Kind
		f.Traceback = interp.Describe(ie)
		f.Stack = ie.Stack
	}
	return f
}

func contractFault(op, format string, args ...any) *Fault {
	return &Fault{Kind: KindContract, Op: op, Message: fmt.Sprintf(format, args...), Location: callerLocation(1)}
}

func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
