package bridge

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/chazu/starbridge/config"
)

// ErrNoLibrary is returned when preloading is requested and no library path
// can be determined.
var ErrNoLibrary = errors.New("interpreter library path unknown")

// bootstrap prepares the process before the interpreter is initialized.
func bootstrap(cfg config.Library) error {
	var errs []error

	if runtime.GOOS == "windows" && len(cfg.Conflicts) > 0 {
		path, removed := sanitizeSearchPath(os.Getenv("PATH"), cfg.Conflicts)
		if len(removed) > 0 {
			log.Infof("removing %s from PATH", strings.Join(removed, ", "))
			if err := os.Setenv("PATH", path); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if cfg.Preload {
		lib, err := LibraryPath(cfg)
		if err == nil {
			err = preload(lib)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: preload: %w", ErrBootstrap, err))
		} else {
			log.Infof("preloaded %s", lib)
		}
	}
	return errors.Join(errs...)
}

// LibraryPath returns the interpreter shared library to preload: the
// configured path, or else the first line printed by the probe command.
func LibraryPath(cfg config.Library) (string, error) {
	if cfg.Path != "" {
		return cfg.Path, nil
	}
	if len(cfg.Probe) == 0 {
		return "", ErrNoLibrary
	}

	cmd := exec.Command(cfg.Probe[0], cfg.Probe[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", cfg.Probe[0], err)
	}
	line, err := bufio.NewReader(bytes.NewReader(out)).ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		if err == nil {
			err = errors.New("empty first line")
		}
		return "", fmt.Errorf("probe %s: %w: %w", cfg.Probe[0], ErrNoLibrary, err)
	}
	return line, nil
}

// sanitizeSearchPath drops every directory of a path list that contains one
// of the conflicting files, compared case-insensitively. It returns the new
// list and the removed directories.
func sanitizeSearchPath(list string, conflicts []string) (string, []string) {
	var kept, removed []string
	for _, dir := range filepath.SplitList(list) {
		if dir != "" && containsAny(dir, conflicts) {
			removed = append(removed, dir)
			continue
		}
		kept = append(kept, dir)
	}
	return strings.Join(kept, string(os.PathListSeparator)), removed
}

func containsAny(dir string, names []string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		for _, name := range names {
			if strings.EqualFold(e.Name(), name) {
				return true
			}
		}
	}
	return false
}
