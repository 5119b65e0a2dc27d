//go:build !cgo || !(linux || darwin)

package opencl

import (
	"runtime"

	"github.com/gomlx/goclmm/cl"
	"github.com/pkg/errors"
)

// LibraryNames is empty: the OpenCL library can't be loaded on this platform.
var LibraryNames []string

func init() {
	cl.Register(DriverName, func() (cl.Driver, error) {
		return nil, errors.Errorf("opencl driver not available on %s/%s: it requires cgo on linux or darwin",
			runtime.GOOS, runtime.GOARCH)
	})
}
