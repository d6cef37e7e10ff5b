package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/chazu/starbridge/bridge"
	"github.com/chazu/starbridge/host"
)

const historyFile = ".starbridge_history"

// session is the console's state: one host map used as both locals and
// globals. Names an input binds are written back to it after the input
// succeeds.
type session struct {
	b    *bridge.Bridge
	env  *host.Env
	vars *host.Map
	out  io.Writer
}

func newSession(b *bridge.Bridge, env *host.Env, out io.Writer) *session {
	return &session{b: b, env: env, vars: host.NewMap(), out: out}
}

// eval runs one input. A lone expression is evaluated and its value
// printed unless it is None.
func (s *session) eval(src string) error {
	expr := isExpression(src)
	if expr {
		src = "_ = (" + src + ")"
	}

	out, err := s.b.ExecResult(s.env, src, s.vars, s.vars)
	if err != nil {
		return err
	}

	for _, name := range out.Bound {
		s.vars.Put(name, s.b.Library().Hold(out.Locals[name]))
	}

	if expr {
		if v := out.Locals["_"]; v != nil && v != starlark.None {
			fmt.Fprintln(s.out, v.String())
		}
	}
	return nil
}

func isExpression(src string) bool {
	_, err := syntax.ParseExpr("<console>", src, 0)
	return err == nil
}

// needsMore reports whether the console should keep reading lines before
// evaluating: after a line opening a block, until a blank line.
func needsMore(buf []string) bool {
	if len(buf) == 0 {
		return false
	}
	first := strings.TrimSpace(buf[0])
	last := buf[len(buf)-1]
	if strings.HasSuffix(first, ":") || strings.HasSuffix(strings.TrimSpace(last), "\\") {
		return strings.TrimSpace(last) != ""
	}
	return false
}

func (s *session) command(line string) (quit bool) {
	switch fields := strings.Fields(line); fields[0] {
	case ":quit", ":q":
		return true
	case ":vars":
		for _, k := range s.vars.Keys() {
			v, _ := s.vars.Get(k)
			fmt.Fprintf(s.out, "%s = %v\n", k, v)
		}
	case ":state":
		fmt.Fprintf(s.out, "%s, %d host references\n", s.b.State(), s.b.Runtime().Refs().Len())
	case ":help":
		fmt.Fprintln(s.out, ":vars   list session bindings")
		fmt.Fprintln(s.out, ":state  show bridge state")
		fmt.Fprintln(s.out, ":quit   leave the console")
	default:
		fmt.Fprintf(s.out, "unknown command %s. Type :help for commands.\n", fields[0])
	}
	return false
}

func runConsole(b *bridge.Bridge, env *host.Env) int {
	fmt.Printf("starbridge console (%s). Type :help for commands.\n", b.Runtime().Name())

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	s := newSession(b, env, os.Stdout)
	var buf []string
	for {
		prompt := ">>> "
		if len(buf) > 0 {
			prompt = "... "
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return 0
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			buf = buf[:0]
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}

		if len(buf) == 0 && strings.HasPrefix(strings.TrimSpace(line), ":") {
			if s.command(strings.TrimSpace(line)) {
				return 0
			}
			continue
		}

		buf = append(buf, line)
		if needsMore(buf) {
			continue
		}
		src := strings.TrimRight(strings.Join(buf, "\n"), "\n")
		buf = buf[:0]
		if strings.TrimSpace(src) == "" {
			continue
		}

		ln.AppendHistory(src)
		if err := s.eval(src); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
