//go:build !((linux || darwin || freebsd) && cgo)

package bridge

import (
	"errors"
	"runtime"
)

var errPreloadUnsupported = errors.New("library preload needs cgo on " + runtime.GOOS)

func preload(string) error { return errPreloadUnsupported }
