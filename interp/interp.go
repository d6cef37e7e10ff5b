// Package interp embeds a Starlark interpreter as a long-lived,
// process-wide runtime: a persistent top-level namespace, an importable
// module registry, an error indicator, per-goroutine state and a global
// execution lock.
//
// Every operation that runs interpreter code requires the execution lock.
package interp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/sasha-s/go-deadlock"
	"github.com/tliron/commonlog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// MainModule is the name of the persistent top-level namespace.
const MainModule = "__main__"

const threadKey = "starbridge.interp"

var log = commonlog.GetLogger("starbridge.interp")

// ErrNotHeld is returned when an operation needs the execution lock and the
// calling goroutine does not hold it.
var ErrNotHeld = errors.New("execution lock not held")

// Options configures an Interpreter.
type Options struct {
	Name string

	// Stdout receives print() output; Stderr receives printed errors.
	Stdout io.Writer
	Stderr io.Writer

	// File controls which language features fragments may use.
	// Nil enables set, while, top-level control flow, global reassignment
	// and recursion.
	File *syntax.FileOptions
}

// Interpreter is one embedded interpreter instance.
type Interpreter struct {
	name   string
	stdout io.Writer
	stderr io.Writer
	file   *syntax.FileOptions

	lock *Lock
	tls  *ThreadLocals

	mu          deadlock.Mutex
	initialized bool
	modules     map[string]*starlarkstruct.Module
	main        *Namespace

	// pending is the error indicator. Guarded by the execution lock.
	pending error
}

// New creates an uninitialized interpreter.
func New(opts Options) *Interpreter {
	in := &Interpreter{
		name:    opts.Name,
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
		file:    opts.File,
		lock:    NewLock(),
		tls:     newThreadLocals(),
		modules: make(map[string]*starlarkstruct.Module),
	}
	if in.name == "" {
		in.name = "starbridge"
	}
	if in.stdout == nil {
		in.stdout = os.Stdout
	}
	if in.stderr == nil {
		in.stderr = os.Stderr
	}
	if in.file == nil {
		in.file = &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
			Recursion:       true,
		}
	}
	return in
}

// FromThread returns the interpreter running thread, or nil.
func FromThread(thread *starlark.Thread) *Interpreter {
	in, _ := thread.Local(threadKey).(*Interpreter)
	return in
}

func (in *Interpreter) Name() string                { return in.name }
func (in *Interpreter) Lock() *Lock                 { return in.lock }
func (in *Interpreter) ThreadLocals() *ThreadLocals { return in.tls }

// Initialize prepares the top-level namespace. Calling it again is a no-op.
func (in *Interpreter) Initialize() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.initialized {
		return nil
	}
	if in.main == nil {
		in.main = NewNamespace(MainModule)
	}
	in.initialized = true
	log.Debug("interpreter initialized", "name", in.name)
	return nil
}

// IsInitialized reports whether Initialize has run since the last Finalize.
func (in *Interpreter) IsInitialized() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.initialized
}

// Finalize drops the top-level namespace and all per-goroutine state.
// Registered modules survive.
func (in *Interpreter) Finalize() {
	in.mu.Lock()
	defer in.mu.Unlock()

	if !in.initialized {
		return
	}
	in.main.Release()
	in.main = nil
	in.tls.Clear()
	in.pending = nil
	in.initialized = false
	log.Debug("interpreter finalized", "name", in.name)
}

// Main returns the persistent top-level namespace, creating it if needed.
func (in *Interpreter) Main() *Namespace {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.main == nil {
		in.main = NewNamespace(MainModule)
	}
	return in.main
}

// Register makes a module importable by name, replacing any previous module
// of that name.
func (in *Interpreter) Register(m *starlarkstruct.Module) {
	in.mu.Lock()
	in.modules[m.Name] = m
	in.mu.Unlock()
}

// Modules returns the registered module names, sorted.
func (in *Interpreter) Modules() []string {
	in.mu.Lock()
	defer in.mu.Unlock()

	names := make([]string, 0, len(in.modules))
	for name := range in.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Error indicator
// ---------------------------------------------------------------------------

// Occurred returns the pending error, if any.
func (in *Interpreter) Occurred() error { return in.pending }

// Clear resets the error indicator.
func (in *Interpreter) Clear() { in.pending = nil }

// Fetch returns the pending error and clears the indicator.
func (in *Interpreter) Fetch() error {
	err := in.pending
	in.pending = nil
	return err
}

// PrintErr writes the pending error to stderr, clears the indicator, and
// returns the printed text. It returns "" if nothing is pending.
func (in *Interpreter) PrintErr() string {
	err := in.Fetch()
	if err == nil {
		return ""
	}
	text := Describe(err)
	fmt.Fprintln(in.stderr, strings.TrimRight(text, "\n"))
	return text
}

// Describe returns what printing err shows.
func Describe(err error) string {
	var ie *Error
	if errors.As(err, &ie) && ie.Text != "" {
		return ie.Text
	}
	return err.Error()
}

// raise sets the error indicator and returns the classified error.
func (in *Interpreter) raise(kind string, err error) error {
	e := newError(kind, err)
	in.pending = e
	return e
}

// ---------------------------------------------------------------------------
// Execution primitives
// ---------------------------------------------------------------------------

// NewThread creates a thread whose print goes to stdout and whose load
// resolves registered modules.
func (in *Interpreter) NewThread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(in.stdout, msg)
		},
		Load: in.load,
	}
	thread.SetLocal(threadKey, in)
	return thread
}

func (in *Interpreter) load(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	in.mu.Lock()
	m, ok := in.modules[module]
	in.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no module named %q", module)
	}
	return m.Members, nil
}

func (in *Interpreter) held() error {
	if !in.lock.Held() {
		return ErrNotHeld
	}
	return nil
}

// Import returns a registered module.
func (in *Interpreter) Import(name string) (*starlarkstruct.Module, error) {
	if err := in.held(); err != nil {
		return nil, err
	}
	in.mu.Lock()
	m, ok := in.modules[name]
	in.mu.Unlock()
	if !ok {
		return nil, in.raise(ImportError, errorf(ImportError, "no module named %q", name))
	}
	return m, nil
}

// GetAttr looks up an attribute of v.
func (in *Interpreter) GetAttr(v starlark.Value, name string) (starlark.Value, error) {
	if err := in.held(); err != nil {
		return nil, err
	}
	attrs, ok := v.(starlark.HasAttrs)
	if !ok {
		return nil, in.raise(AttributeError, errorf(AttributeError, "%s has no attribute %q", v.Type(), name))
	}
	attr, err := attrs.Attr(name)
	if err != nil {
		return nil, in.raise(AttributeError, err)
	}
	if attr == nil {
		return nil, in.raise(AttributeError, errorf(AttributeError, "%s has no attribute %q", v.String(), name))
	}
	return attr, nil
}

// Call calls fn with positional args on a fresh thread.
func (in *Interpreter) Call(fn starlark.Value, args ...starlark.Value) (starlark.Value, error) {
	if err := in.held(); err != nil {
		return nil, err
	}
	thread := in.NewThread(fmt.Sprintf("call %s", fn))
	result, err := starlark.Call(thread, fn, starlark.Tuple(args), nil)
	if err != nil {
		return nil, in.raise(RuntimeError, err)
	}
	return result, nil
}

// CallMethod looks up method on recv and calls it.
func (in *Interpreter) CallMethod(recv starlark.Value, method string, args ...starlark.Value) (starlark.Value, error) {
	fn, err := in.GetAttr(recv, method)
	if err != nil {
		return nil, err
	}
	return in.Call(fn, args...)
}

// Exec runs src as a sequence of top-level statements.
//
// Names resolve through locals, then globals, then the universe. Every name
// src binds or rebinds at top level is stored into locals; names it only
// reads are left where they were. Passing the same namespace for both makes
// them one environment.
func (in *Interpreter) Exec(filename, src string, globals, locals *Namespace) error {
	_, err := in.ExecBound(filename, src, globals, locals)
	return err
}

// ExecBound is Exec, and also returns the sorted names src stored into
// locals.
//
// When src fails partway, only the names whose bindings it had already
// replaced are stored.
func (in *Interpreter) ExecBound(filename, src string, globals, locals *Namespace) ([]string, error) {
	if err := in.held(); err != nil {
		return nil, err
	}

	f, err := in.file.Parse(filename, src, 0)
	if err != nil {
		return nil, in.raise(SyntaxError, err)
	}

	env := globals.Snapshot()
	if locals != globals {
		for name, v := range locals.Snapshot() {
			env[name] = v
		}
	}
	before := make(starlark.StringDict, len(env))
	for name, v := range env {
		before[name] = v
	}

	targets := make(map[string]bool)
	boundNames(f.Stmts, targets)
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)

	err = starlark.ExecREPLChunk(f, in.NewThread(filename), env)

	var stored []string
	for _, name := range names {
		v, ok := env[name]
		if !ok || v == nil {
			continue
		}
		if err != nil {
			if old, ok := before[name]; ok && sameValue(old, v) {
				continue
			}
		}
		if setErr := locals.Set(name, v); setErr != nil {
			if err == nil {
				err = setErr
			}
			continue
		}
		stored = append(stored, name)
	}

	if err != nil {
		return stored, in.raise(RuntimeError, err)
	}
	return stored, nil
}

// boundNames adds to names every identifier stmts bind at top level:
// assignment targets, def names and for-loop variables, including those in
// the bodies of top-level if, for and while statements.
func boundNames(stmts []syntax.Stmt, names map[string]bool) {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *syntax.AssignStmt:
			targetNames(s.LHS, names)
		case *syntax.DefStmt:
			names[s.Name.Name] = true
		case *syntax.ForStmt:
			targetNames(s.Vars, names)
			boundNames(s.Body, names)
		case *syntax.WhileStmt:
			boundNames(s.Body, names)
		case *syntax.IfStmt:
			boundNames(s.True, names)
			boundNames(s.False, names)
		}
	}
}

func targetNames(e syntax.Expr, names map[string]bool) {
	switch x := e.(type) {
	case *syntax.Ident:
		names[x.Name] = true
	case *syntax.ParenExpr:
		targetNames(x.X, names)
	case *syntax.TupleExpr:
		for _, elem := range x.List {
			targetNames(elem, names)
		}
	case *syntax.ListExpr:
		for _, elem := range x.List {
			targetNames(elem, names)
		}
	}
}

// sameValue reports whether a and b are the same value, not merely equal.
func sameValue(a, b starlark.Value) bool {
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) {
		return false
	}
	if t.Comparable() {
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Slice {
		return va.Len() == vb.Len() && (va.Len() == 0 || va.Pointer() == vb.Pointer())
	}
	return false
}
