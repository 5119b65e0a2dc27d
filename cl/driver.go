package cl

import (
	"os"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Driver is the OpenCL API surface needed to run the multiplication kernels.
//
// All enqueue operations are blocking: they return only after the command completed (or failed).
// Errors wrap a Status, see StatusOf.
type Driver interface {
	// Name of the driver, as registered.
	Name() string

	PlatformIDs() ([]Platform, error)
	PlatformInfo(platform Platform) (PlatformInfo, error)
	DeviceIDs(platform Platform, deviceType DeviceType) ([]Device, error)
	DeviceInfo(device Device) (DeviceInfo, error)

	CreateContext(device Device) (Context, error)
	CreateCommandQueue(ctx Context, device Device, properties QueueProperties) (Queue, error)

	CreateProgramWithSource(ctx Context, source string) (Program, error)
	BuildProgram(program Program, device Device, options string) error
	ProgramBuildLog(program Program, device Device) (string, error)

	CreateBuffer(ctx Context, flags MemFlags, size int) (Mem, error)
	EnqueueWriteBuffer(queue Queue, mem Mem, data []byte) error
	EnqueueReadBuffer(queue Queue, mem Mem, data []byte) error

	CreateKernel(program Program, name string) (Kernel, error)
	SetKernelArgInt32(kernel Kernel, index int, value int32) error
	SetKernelArgBuffer(kernel Kernel, index int, mem Mem) error
	// EnqueueNDRangeKernel dispatches kernel over the global range split in work-groups of the local size.
	// The returned event must be released by the caller.
	EnqueueNDRangeKernel(queue Queue, kernel Kernel, global, local []int) (Event, error)
	Finish(queue Queue) error
	EventProfilingInfo(event Event, info ProfilingInfo) (uint64, error)

	ReleaseEvent(event Event) error
	ReleaseKernel(kernel Kernel) error
	ReleaseMemObject(mem Mem) error
	ReleaseProgram(program Program) error
	ReleaseCommandQueue(queue Queue) error
	ReleaseContext(ctx Context) error
	ReleaseDevice(device Device) error
}

// Loader opens a driver. It is called at most once per registered name, the first time it is requested.
type Loader func() (Driver, error)

const (
	// DriverEnv is the environment variable that selects the default driver.
	DriverEnv = "GOCLMM_DRIVER"

	// DefaultDriverName is the driver used when DriverEnv is not set.
	DefaultDriverName = "opencl"
)

var (
	// loaders and loadedDrivers are protected by muDrivers.
	loaders       = make(map[string]Loader)
	loadedDrivers = make(map[string]Driver)
	muDrivers     sync.Mutex
)

// Register makes a driver available under the given name. Registering the same name twice replaces the
// previous loader, and drops the cached driver if it was already loaded.
func Register(name string, loader Loader) {
	muDrivers.Lock()
	defer muDrivers.Unlock()
	loaders[name] = loader
	delete(loadedDrivers, name)
	klog.V(2).Infof("cl: registered driver %q", name)
}

// Get returns the driver registered under name, loading it if needed.
//
// Loaded drivers are cached: Get returns the same Driver for the same name. A failed load is not cached.
func Get(name string) (Driver, error) {
	muDrivers.Lock()
	defer muDrivers.Unlock()
	if driver, found := loadedDrivers[name]; found {
		return driver, nil
	}
	loader, found := loaders[name]
	if !found {
		return nil, errors.Errorf("cl driver %q not registered, registered drivers: %q", name, namesLocked())
	}
	driver, err := loader()
	if err != nil {
		return nil, errors.WithMessagef(err, "loading cl driver %q", name)
	}
	klog.V(1).Infof("cl: loaded driver %q", name)
	loadedDrivers[name] = driver
	return driver, nil
}

// Names returns the names of the registered drivers, sorted.
func Names() []string {
	muDrivers.Lock()
	defer muDrivers.Unlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(loaders))
	for name := range loaders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultDriver returns the name of the driver selected by DriverEnv, or DefaultDriverName.
func DefaultDriver() string {
	if name := os.Getenv(DriverEnv); name != "" {
		return name
	}
	return DefaultDriverName
}
