// Package bridge runs script fragments in the embedded interpreter on behalf
// of host code.
//
// Every cross-call follows the same path: make sure the interpreter is ready,
// take the execution lock, attach the caller's context, build the namespaces,
// run the fragment, detach, release the lock. Failures anywhere on that path
// come back as a *Fault.
package bridge

import (
	"io"
	"os"
	"sync"

	"github.com/tliron/commonlog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/chazu/starbridge/config"
	"github.com/chazu/starbridge/host"
	"github.com/chazu/starbridge/interp"
	"github.com/chazu/starbridge/support"
)

var log = commonlog.GetLogger("starbridge.bridge")

// Bridge connects one host runtime to one embedded interpreter.
type Bridge struct {
	rt  *host.Runtime
	cfg *config.Config
	in  *interp.Interpreter
	lib *support.Library

	guard guard

	stdout, stderr io.Writer
	modules        []*starlarkstruct.Module
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithOutput directs print() output and printed errors.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(b *Bridge) {
		b.stdout = stdout
		b.stderr = stderr
	}
}

// WithModules makes extra modules loadable by fragments. They are
// registered after the support library and replace modules of the same name.
func WithModules(mods ...*starlarkstruct.Module) Option {
	return func(b *Bridge) {
		b.modules = append(b.modules, mods...)
	}
}

// New creates a bridge for rt. The interpreter is initialized lazily by the
// first cross-call. A nil cfg uses config.Default().
func New(rt *host.Runtime, cfg *config.Config, opts ...Option) *Bridge {
	if cfg == nil {
		cfg = config.Default()
	}
	b := &Bridge{rt: rt, cfg: cfg}
	for _, opt := range opts {
		opt(b)
	}

	b.in = interp.New(interp.Options{
		Name:   cfg.Interpreter.Name,
		Stdout: b.stdout,
		Stderr: b.stderr,
		File: &syntax.FileOptions{
			Set:             true,
			While:           cfg.Interpreter.While,
			TopLevelControl: true,
			GlobalReassign:  true,
			Recursion:       cfg.Interpreter.Recursion,
		},
	})
	b.lib = support.Install(b.in)
	for _, m := range b.modules {
		b.in.Register(m)
	}
	return b
}

func (b *Bridge) Runtime() *host.Runtime           { return b.rt }
func (b *Bridge) Config() *config.Config           { return b.cfg }
func (b *Bridge) Interpreter() *interp.Interpreter { return b.in }
func (b *Bridge) Library() *support.Library        { return b.lib }

// State reports the lifecycle state without initializing.
func (b *Bridge) State() State { return b.guard.load() }

// Init runs the one-time initialization now instead of at the first call.
func (b *Bridge) Init() State {
	b.ensureReady()
	return b.State()
}

// Exec runs script with the given namespaces. Either map may be nil; passing
// the same map for both runs the fragment in a single namespace.
func (b *Bridge) Exec(env *host.Env, script string, locals, globals host.Object) error {
	_, err := b.ExecResult(env, script, locals, globals)
	return err
}

// ExecResult is Exec, also returning the namespaces the fragment ran in.
func (b *Bridge) ExecResult(env *host.Env, script string, locals, globals host.Object) (*Outcome, error) {
	if script == "" {
		return nil, contractFault("exec", "fragment required")
	}
	if env == nil {
		return nil, contractFault("exec", "execution context required")
	}

	b.ensureReady()

	b.in.Lock().Ensure()
	defer b.in.Lock().Release()

	var out *Outcome
	err := b.withContext(env, func() error {
		var err error
		out, err = b.run(script, locals, globals)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WrapHandle returns the script-side proxy for obj, attached as env.
func (b *Bridge) WrapHandle(env *host.Env, obj host.Object) (starlark.Value, error) {
	if env == nil {
		return nil, contractFault("wrap", "execution context required")
	}
	b.ensureReady()

	b.in.Lock().Ensure()
	defer b.in.Lock().Release()

	var v starlark.Value
	err := b.withContext(env, func() error {
		var err error
		v, err = b.wrapHandle(obj)
		return err
	})
	return v, err
}

var (
	defaultOnce   sync.Once
	defaultBridge *Bridge
)

// Default returns the process-wide bridge, configured from starbridge.toml
// and the environment on first use.
func Default() *Bridge {
	defaultOnce.Do(func() {
		cfg, err := config.FromEnvironment()
		if err != nil {
			log.Warningf("using default configuration: %s", err)
			cfg = config.Default()
			cfg.ApplyEnv(os.LookupEnv)
		}
		defaultBridge = New(host.NewRuntime(cfg.Interpreter.Name), cfg)
	})
	return defaultBridge
}

// Exec runs script on the default bridge with a fresh context.
func Exec(script string, locals, globals host.Object) error {
	b := Default()
	return b.Exec(b.rt.NewEnv(), script, locals, globals)
}
