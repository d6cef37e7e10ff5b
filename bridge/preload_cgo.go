//go:build (linux || darwin || freebsd) && cgo

package bridge

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>

static void* sb_dlopen_global(const char* path) {
	return dlopen(path, RTLD_LAZY | RTLD_GLOBAL);
}
static const char* sb_dlerror(void) {
	return dlerror();
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// preload loads lib with global symbol visibility so extension libraries
// loaded later resolve against it. The handle is never closed.
func preload(lib string) error {
	cs := C.CString(lib)
	defer C.free(unsafe.Pointer(cs))
	if h := C.sb_dlopen_global(cs); h == nil {
		return fmt.Errorf("dlopen(%q) failed: %s", lib, dlerr())
	}
	return nil
}

func dlerr() string {
	if e := C.sb_dlerror(); e != nil {
		return C.GoString(e)
	}
	return "unknown dlerror"
}
