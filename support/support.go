// Package support is the script-side half of the bridge: the hostbridge
// modules installed into the interpreter, and the values that stand for host
// objects and execution contexts while a script runs.
//
// The bridge never reaches into this package directly for call-time work. It
// imports hostbridge by name and calls the functions below, the same way a
// script would.
package support

import (
	"errors"
	"fmt"

	"github.com/sasha-s/go-deadlock"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/chazu/starbridge/capsule"
	"github.com/chazu/starbridge/host"
	"github.com/chazu/starbridge/interp"
)

// Module names.
const (
	ModuleName     = "hostbridge"
	UtilModuleName = "hostbridge.util"
)

// Version of the support library, exposed as hostbridge.version.
const Version = "1.2.0"

// Names the bridge looks up at call time.
const (
	FnJVMEnter    = "jvm_enter"
	FnJNIEnter    = "jni_enter"
	FnJNIExit     = "jni_exit"
	FnGetEnv      = "get_env"
	FnMakeProxy   = "make_proxy_from_capsule"
	FnMakeMapping = "make_mapping_from_foreign_map"
	FnIsProxy     = "is_proxy"
	AttrMain      = "main"
	AttrVersion   = "version"
)

// envStackKey is the thread-local slot holding a goroutine's attached envs.
const envStackKey = "hostbridge.envs"

// refOwner tags global references held by proxies.
const refOwner = "hostbridge.proxy"

var (
	// ErrNoRuntime is returned when a context is needed before jvm_enter ran.
	ErrNoRuntime = errors.New("host runtime not registered")

	// ErrNotAttached is returned by jni_exit with nothing attached.
	ErrNotAttached = errors.New("no host context attached")
)

// Library is the support library installed into one interpreter.
type Library struct {
	in *interp.Interpreter

	mu deadlock.Mutex
	rt *host.Runtime
}

// Install registers hostbridge and hostbridge.util with in and returns the
// library backing them. Install again after the interpreter is finalized.
func Install(in *interp.Interpreter) *Library {
	l := &Library{in: in}

	in.Register(&starlarkstruct.Module{
		Name: ModuleName,
		Members: starlark.StringDict{
			FnJVMEnter:  starlark.NewBuiltin(FnJVMEnter, l.jvmEnter),
			FnJNIEnter:  starlark.NewBuiltin(FnJNIEnter, l.jniEnter),
			FnJNIExit:   starlark.NewBuiltin(FnJNIExit, l.jniExit),
			FnGetEnv:    starlark.NewBuiltin(FnGetEnv, l.getEnv),
			FnIsProxy:   starlark.NewBuiltin(FnIsProxy, isProxy),
			AttrMain:    in.Main(),
			AttrVersion: starlark.String(Version),
		},
	})
	in.Register(&starlarkstruct.Module{
		Name: UtilModuleName,
		Members: starlark.StringDict{
			FnMakeMapping: starlark.NewBuiltin(FnMakeMapping, l.makeMapping),
		},
	})
	return l
}

func (l *Library) Interpreter() *interp.Interpreter { return l.in }

// Runtime returns the runtime registered by jvm_enter, or nil.
func (l *Library) Runtime() *host.Runtime {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rt
}

// Current returns the context attached on the calling goroutine.
func (l *Library) Current() (*host.Env, bool) {
	stack := l.stack()
	if len(stack) == 0 {
		return nil, false
	}
	return stack[len(stack)-1], true
}

// Depth returns how many contexts are attached on the calling goroutine.
func (l *Library) Depth() int { return len(l.stack()) }

// Env returns the attached context, or a fresh one from the registered
// runtime when the calling goroutine has none.
func (l *Library) Env() (*host.Env, error) {
	if env, ok := l.Current(); ok {
		return env, nil
	}
	rt := l.Runtime()
	if rt == nil {
		return nil, ErrNoRuntime
	}
	return rt.NewEnv(), nil
}

// Truncate pops attached contexts on the calling goroutine until depth
// remain. It restores the registry when jni_exit could not run.
func (l *Library) Truncate(depth int) {
	for l.Depth() > depth {
		_, _ = l.pop()
	}
}

func (l *Library) stack() []*host.Env {
	v, ok := l.in.ThreadLocals().Get(envStackKey)
	if !ok {
		return nil
	}
	return v.([]*host.Env)
}

func (l *Library) push(env *host.Env) {
	l.in.ThreadLocals().Set(envStackKey, append(l.stack(), env))
}

func (l *Library) pop() (*host.Env, error) {
	stack := l.stack()
	if len(stack) == 0 {
		return nil, ErrNotAttached
	}
	env := stack[len(stack)-1]
	if len(stack) == 1 {
		l.in.ThreadLocals().Delete(envStackKey)
	} else {
		l.in.ThreadLocals().Set(envStackKey, stack[:len(stack)-1])
	}
	return env, nil
}

// ---------------------------------------------------------------------------
// hostbridge builtins
// ---------------------------------------------------------------------------

func (l *Library) jvmEnter(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	rt, err := unwrap[*host.Runtime](v, capsule.TagRuntime)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	l.mu.Lock()
	l.rt = rt
	l.mu.Unlock()
	return starlark.None, nil
}

func (l *Library) jniEnter(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	env, err := unwrap[*host.Env](v, capsule.TagEnv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	l.push(env)
	return starlark.None, nil
}

func (l *Library) jniExit(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	if _, err := l.pop(); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}

func (l *Library) getEnv(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	env, err := l.Env()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return &EnvValue{lib: l, env: env}, nil
}

func isProxy(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	_, ok := v.(*Proxy)
	return starlark.Bool(ok), nil
}

func unwrap[T any](v starlark.Value, tag string) (T, error) {
	var zero T
	c, err := capsule.FromValue(v)
	if err != nil {
		return zero, err
	}
	return capsule.As[T](c, capsule.OwnerHost, tag)
}
