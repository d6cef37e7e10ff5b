// Package config handles starbridge.toml configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// FileName is the configuration file searched for by FindAndLoad.
const FileName = "starbridge.toml"

// EnvLibrary overrides the interpreter library path and turns preloading on.
const EnvLibrary = "STARBRIDGE_LIBRARY"

var validate = validator.New()

// Config represents a starbridge.toml configuration.
type Config struct {
	Interpreter Interpreter `toml:"interpreter" json:"interpreter"`
	Library     Library     `toml:"library" json:"library"`
	Log         Log         `toml:"log" json:"log"`

	// Dir is the directory containing the starbridge.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Interpreter configures the embedded interpreter.
type Interpreter struct {
	Name      string `toml:"name" json:"name" validate:"required" jsonschema:"description=Name reported by the interpreter and its runtime"`
	Filename  string `toml:"filename" json:"filename" validate:"required" jsonschema:"description=File name shown in tracebacks of executed fragments"`
	Recursion bool   `toml:"recursion" json:"recursion" jsonschema:"description=Allow recursive functions"`
	While     bool   `toml:"while" json:"while" jsonschema:"description=Allow while loops"`
}

// Library configures the platform bootstrap of the interpreter library.
type Library struct {
	Preload   bool     `toml:"preload" json:"preload" jsonschema:"description=Load the interpreter shared library globally before first use"`
	Path      string   `toml:"path" json:"path,omitempty" jsonschema:"description=Shared library to preload"`
	Probe     []string `toml:"probe" json:"probe,omitempty" validate:"omitempty,dive,required" jsonschema:"description=Command whose first output line names the shared library"`
	Conflicts []string `toml:"conflicts" json:"conflicts,omitempty" validate:"dive,required" jsonschema:"description=Libraries whose directories are removed from PATH on Windows"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity" json:"verbosity" validate:"min=-4,max=4" jsonschema:"description=Log verbosity; 0 logs notices and above"`
	File      string `toml:"file" json:"file,omitempty" jsonschema:"description=Log file; empty logs to stderr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Interpreter: Interpreter{
			Name:      "starbridge",
			Filename:  "<bridge>",
			Recursion: true,
			While:     true,
		},
		Library: Library{
			Conflicts: []string{"msvcr90.dll"},
		},
	}
}

// Load parses a starbridge.toml file from the given directory.
func Load(dir string) (*Config, error) {
	c, err := LoadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// LoadFile parses a configuration file at path over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Dir = filepath.Dir(path)

	// Defaults
	if c.Library.Conflicts == nil {
		c.Library.Conflicts = Default().Library.Conflicts
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a starbridge.toml file,
// then loads and returns the configuration. Returns nil if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// FromEnvironment returns the configuration found from the working
// directory, or the defaults, with environment overrides applied.
func FromEnvironment() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	c, err := FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = Default()
	}
	c.ApplyEnv(os.LookupEnv)
	return c, nil
}

// ApplyEnv applies environment overrides read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if path, ok := lookup(EnvLibrary); ok && path != "" {
		c.Library.Path = path
		c.Library.Preload = true
	}
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
