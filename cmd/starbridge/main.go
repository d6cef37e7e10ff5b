// starbridge runs script fragments through the bridge, the way host code
// would, and offers an interactive console on top of it.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/starbridge/bridge"
	"github.com/chazu/starbridge/config"
	"github.com/chazu/starbridge/host"
)

func main() {
	configPath := flag.String("config", "", "Configuration file (default: starbridge.toml found upward from the working directory)")
	script := flag.String("e", "", "Fragment to execute before any files")
	localsPath := flag.String("locals", "", "Bindings file for locals (.toml, .yaml, .yml, .json, .cbor)")
	globalsPath := flag.String("globals", "", "Bindings file for globals")
	same := flag.Bool("same", false, "Use the locals map for globals as well")
	dump := flag.Bool("dump", false, "Print the resulting namespaces as YAML after each fragment")
	interactive := flag.Bool("i", false, "Start the interactive console")
	schema := flag.Bool("schema", false, "Print the configuration JSON schema and exit")
	verbose := flag.Int("v", 0, "Additional log verbosity")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: starbridge [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Executes fragments and files in the embedded interpreter through the bridge.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  starbridge -i                                # Start console\n")
		fmt.Fprintf(os.Stderr, "  starbridge -e 'print(1 + 1)'                 # Run a fragment\n")
		fmt.Fprintf(os.Stderr, "  starbridge -locals vars.yaml -dump job.star  # Run a file with bindings\n")
		fmt.Fprintf(os.Stderr, "  starbridge -schema > starbridge.schema.json  # Config schema\n")
	}
	flag.Parse()

	if *schema {
		out, err := config.Schema()
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Println(string(out))
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("%v", err)
	}

	var logFile *string
	if cfg.Log.File != "" {
		logFile = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity+*verbose, logFile)

	rt := host.NewRuntime(cfg.Interpreter.Name)
	b := bridge.New(rt, cfg)
	if state := b.Init(); state != bridge.StateReady {
		fmt.Fprintf(os.Stderr, "Warning: bridge is %s\n", state)
	}

	locals, err := loadBindings(*localsPath)
	if err != nil {
		fatalf("%v", err)
	}
	globals := locals
	if !*same {
		if globals, err = loadBindings(*globalsPath); err != nil {
			fatalf("%v", err)
		}
	}

	var fragments []fragment
	if *script != "" {
		fragments = append(fragments, fragment{name: "-e", src: *script})
	}
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fatalf("%v", err)
		}
		fragments = append(fragments, fragment{name: path, src: string(data)})
	}

	env := rt.NewEnv()
	for _, f := range fragments {
		out, err := b.ExecResult(env, f.src, mapOrNil(locals), mapOrNil(globals))
		if err != nil {
			fatalf("%s: %v", f.name, err)
		}
		if *dump {
			text, err := dumpOutcome(out)
			if err != nil {
				fatalf("%v", err)
			}
			fmt.Print(text)
		}
	}

	if *interactive || len(fragments) == 0 {
		os.Exit(runConsole(b, env))
	}
}

type fragment struct {
	name string
	src  string
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnvironment()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// mapOrNil keeps a missing bindings file a nil interface rather than a
// typed nil.
func mapOrNil(m *host.Map) host.Object {
	if m == nil {
		return nil
	}
	return m
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
