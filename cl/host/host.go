// Package host implements a cl.Driver that emulates one OpenCL device in pure Go.
//
// The emulated device has an in-order queue, records profiling timestamps, enforces the OpenCL 1.x
// work-group rules (the global size must be divisible by the local size) and "compiles" programs by scanning
// the kernel source for the entry points it knows how to run. It also keeps a log of every released object and
// can be configured to fail at any step, so the error paths of its users can be tested without a GPU.
//
// It is registered with the name "host":
//
//	driver, err := cl.Get("host")
package host

import (
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/gomlx/goclmm/cl"
	"k8s.io/klog/v2"
)

// DriverName is the name under which the host driver is registered in package cl.
const DriverName = "host"

func init() {
	cl.Register(DriverName, func() (cl.Driver, error) {
		return New(), nil
	})
}

// Kind of the objects created by the driver.
type Kind int

const (
	KindPlatform Kind = iota
	KindDevice
	KindContext
	KindQueue
	KindProgram
	KindMem
	KindKernel
	KindEvent
)

var kindNames = [...]string{"Platform", "Device", "Context", "Queue", "Program", "Mem", "Kernel", "Event"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Release is an entry of the release log: an object successfully released.
type Release struct {
	Kind   Kind
	Handle uintptr
}

func (r Release) String() string {
	return fmt.Sprintf("%s#%d", r.Kind, r.Handle)
}

// Default configuration of the emulated device.
const (
	DefaultMemorySize       = 1 << 30
	DefaultMaxWorkGroupSize = 256
)

// DefaultExtensions exposed by the emulated device.
var DefaultExtensions = []string{"cl_khr_fp16", "cl_khr_fp64", "cl_khr_byte_addressable_store"}

type config struct {
	noPlatforms, noDevices bool
	deviceType             cl.DeviceType
	extensions             []string
	maxWorkGroupSize       int
	memorySize             int
	maxAllocations         int // -1 for unlimited.
	contextFailure         cl.Status
	queueFailure           cl.Status
	buildFailure           string
	failBuild              bool
	releaseFailures        map[Kind]bool
	clock                  func() uint64
}

// Option configures the emulated device, see New.
type Option func(c *config)

// WithoutPlatforms makes the driver report that no platform is installed.
func WithoutPlatforms() Option {
	return func(c *config) { c.noPlatforms = true }
}

// WithoutDevices makes the driver report a platform with no devices.
func WithoutDevices() Option {
	return func(c *config) { c.noDevices = true }
}

// WithDeviceType sets the class of the emulated device. Default is cl.DeviceTypeGPU.
func WithDeviceType(deviceType cl.DeviceType) Option {
	return func(c *config) { c.deviceType = deviceType }
}

// WithExtensions replaces the list of extensions exposed by the device. Without "cl_khr_fp16" or "cl_khr_fp64"
// the corresponding kernels are left out of the built program.
func WithExtensions(extensions ...string) Option {
	return func(c *config) { c.extensions = slices.Clone(extensions) }
}

// WithMaxWorkGroupSize sets the maximum number of work-items in a work-group.
func WithMaxWorkGroupSize(size int) Option {
	return func(c *config) { c.maxWorkGroupSize = size }
}

// WithMemorySize sets the total memory of the device: allocations beyond it fail with
// cl.MemObjectAllocationFailure.
func WithMemorySize(bytes int) Option {
	return func(c *config) { c.memorySize = bytes }
}

// WithMaxAllocations makes every buffer allocation after the first n fail with cl.MemObjectAllocationFailure.
func WithMaxAllocations(n int) Option {
	return func(c *config) { c.maxAllocations = n }
}

// WithContextFailure makes CreateContext fail with cl.OutOfHostMemory.
func WithContextFailure() Option {
	return func(c *config) { c.contextFailure = cl.OutOfHostMemory }
}

// WithQueueFailure makes CreateCommandQueue fail with cl.OutOfResources.
func WithQueueFailure() Option {
	return func(c *config) { c.queueFailure = cl.OutOfResources }
}

// WithBuildFailure makes BuildProgram fail with cl.BuildProgramFailure, reporting buildLog as the build log.
func WithBuildFailure(buildLog string) Option {
	return func(c *config) {
		c.failBuild = true
		c.buildFailure = buildLog
	}
}

// WithReleaseFailure makes the release of any object of the given kinds fail with cl.OutOfResources.
// The object is not released.
func WithReleaseFailure(kinds ...Kind) Option {
	return func(c *config) {
		for _, kind := range kinds {
			c.releaseFailures[kind] = true
		}
	}
}

// WithClock replaces the source of the profiling timestamps, in nanoseconds.
func WithClock(clock func() uint64) Option {
	return func(c *config) { c.clock = clock }
}

// Driver is the emulated device. It is safe for concurrent use.
type Driver struct {
	mu  sync.Mutex
	cfg config

	platform cl.Platform
	device   cl.Device

	nextHandle  uintptr
	contexts    map[cl.Context]*context
	queues      map[cl.Queue]*queue
	programs    map[cl.Program]*program
	mems        map[cl.Mem]*mem
	kernels     map[cl.Kernel]*kernel
	events      map[cl.Event]*event
	releases    []Release
	allocations int
	liveBytes   int
	dispatches  int
}

var _ cl.Driver = (*Driver)(nil)

// New creates an emulated device with one platform and one device.
func New(options ...Option) *Driver {
	epoch := time.Now()
	d := &Driver{
		cfg: config{
			deviceType:       cl.DeviceTypeGPU,
			extensions:       slices.Clone(DefaultExtensions),
			maxWorkGroupSize: DefaultMaxWorkGroupSize,
			memorySize:       DefaultMemorySize,
			maxAllocations:   -1,
			releaseFailures:  make(map[Kind]bool),
			clock: func() uint64 {
				return uint64(time.Since(epoch).Nanoseconds())
			},
		},
		contexts: make(map[cl.Context]*context),
		queues:   make(map[cl.Queue]*queue),
		programs: make(map[cl.Program]*program),
		mems:     make(map[cl.Mem]*mem),
		kernels:  make(map[cl.Kernel]*kernel),
		events:   make(map[cl.Event]*event),
	}
	for _, option := range options {
		option(&d.cfg)
	}
	d.platform = cl.Platform(d.newHandle())
	d.device = cl.Device(d.newHandle())
	return d
}

func (d *Driver) newHandle() uintptr {
	d.nextHandle++
	return d.nextHandle
}

// Name implements cl.Driver.
func (d *Driver) Name() string {
	return DriverName
}

// Releases returns a copy of the log of released objects, in release order.
func (d *Driver) Releases() []Release {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.releases)
}

// Live returns the number of objects of the given kind created and not yet released.
// Platforms and devices are not reference counted and are always reported as 1 (or 0 if there are none).
func (d *Driver) Live(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch kind {
	case KindPlatform:
		if d.cfg.noPlatforms {
			return 0
		}
		return 1
	case KindDevice:
		if d.cfg.noPlatforms || d.cfg.noDevices {
			return 0
		}
		return 1
	case KindContext:
		return len(d.contexts)
	case KindQueue:
		return len(d.queues)
	case KindProgram:
		return len(d.programs)
	case KindMem:
		return len(d.mems)
	case KindKernel:
		return len(d.kernels)
	case KindEvent:
		return len(d.events)
	}
	return 0
}

// LiveBytes returns the number of bytes held by buffers not yet released.
func (d *Driver) LiveBytes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveBytes
}

// Dispatches returns the number of kernels successfully executed.
func (d *Driver) Dispatches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatches
}

// PlatformIDs implements cl.Driver.
func (d *Driver) PlatformIDs() ([]cl.Platform, error) {
	if d.cfg.noPlatforms {
		return nil, cl.PlatformNotFoundKHR.Err()
	}
	return []cl.Platform{d.platform}, nil
}

// PlatformInfo implements cl.Driver.
func (d *Driver) PlatformInfo(platform cl.Platform) (cl.PlatformInfo, error) {
	if d.cfg.noPlatforms || platform != d.platform {
		return cl.PlatformInfo{}, cl.InvalidPlatform.Err()
	}
	return cl.PlatformInfo{
		Name:    "goclmm host",
		Vendor:  "goclmm",
		Version: "OpenCL 1.2 goclmm-host",
		Profile: "FULL_PROFILE",
	}, nil
}

// DeviceIDs implements cl.Driver.
func (d *Driver) DeviceIDs(platform cl.Platform, deviceType cl.DeviceType) ([]cl.Device, error) {
	if d.cfg.noPlatforms || platform != d.platform {
		return nil, cl.InvalidPlatform.Err()
	}
	if deviceType == 0 {
		return nil, cl.InvalidDeviceType.Err()
	}
	if d.cfg.noDevices || (deviceType != cl.DeviceTypeDefault && deviceType&d.cfg.deviceType == 0) {
		return nil, cl.DeviceNotFound.Err()
	}
	return []cl.Device{d.device}, nil
}

func (d *Driver) validDevice(device cl.Device) bool {
	return !d.cfg.noPlatforms && !d.cfg.noDevices && device == d.device
}

// DeviceInfo implements cl.Driver.
func (d *Driver) DeviceInfo(device cl.Device) (cl.DeviceInfo, error) {
	if !d.validDevice(device) {
		return cl.DeviceInfo{}, cl.InvalidDevice.Err()
	}
	return cl.DeviceInfo{
		Name:             "goclmm host emulator",
		Vendor:           "goclmm",
		Version:          "OpenCL 1.2 goclmm-host",
		DriverVersion:    "1.0",
		Type:             d.cfg.deviceType,
		Extensions:       slices.Clone(d.cfg.extensions),
		ComputeUnits:     runtime.GOMAXPROCS(0),
		MaxWorkGroupSize: d.cfg.maxWorkGroupSize,
		GlobalMemSize:    uint64(d.cfg.memorySize),
	}, nil
}

type context struct {
	device cl.Device
}

// CreateContext implements cl.Driver.
func (d *Driver) CreateContext(device cl.Device) (cl.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validDevice(device) {
		return 0, cl.InvalidDevice.Err()
	}
	if d.cfg.contextFailure != cl.Success {
		return 0, d.cfg.contextFailure.Err()
	}
	handle := cl.Context(d.newHandle())
	d.contexts[handle] = &context{device: device}
	return handle, nil
}

type queue struct {
	ctx       cl.Context
	profiling bool
}

// CreateCommandQueue implements cl.Driver. Out-of-order execution is not supported.
func (d *Driver) CreateCommandQueue(ctx cl.Context, device cl.Device, properties cl.QueueProperties) (cl.Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, found := d.contexts[ctx]
	if !found {
		return 0, cl.InvalidContext.Err()
	}
	if c.device != device {
		return 0, cl.InvalidDevice.Err()
	}
	if properties&cl.QueueOutOfOrderExecModeEnable != 0 {
		return 0, cl.InvalidQueueProperties.Err()
	}
	if d.cfg.queueFailure != cl.Success {
		return 0, d.cfg.queueFailure.Err()
	}
	handle := cl.Queue(d.newHandle())
	d.queues[handle] = &queue{ctx: ctx, profiling: properties&cl.QueueProfilingEnable != 0}
	return handle, nil
}

// Finish implements cl.Driver. Commands are executed when enqueued, so it only validates the queue.
func (d *Driver) Finish(q cl.Queue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, found := d.queues[q]; !found {
		return cl.InvalidCommandQueue.Err()
	}
	return nil
}

// release removes handle from objects, and appends it to the release log.
func release[H ~uintptr, V any](d *Driver, objects map[H]*V, kind Kind, handle H, invalid cl.Status) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, found := objects[handle]; !found {
		return invalid.Err()
	}
	if d.cfg.releaseFailures[kind] {
		return cl.OutOfResources.Err()
	}
	delete(objects, handle)
	d.releases = append(d.releases, Release{Kind: kind, Handle: uintptr(handle)})
	klog.V(3).Infof("host: released %s#%d", kind, handle)
	return nil
}

// ReleaseEvent implements cl.Driver.
func (d *Driver) ReleaseEvent(event cl.Event) error {
	return release(d, d.events, KindEvent, event, cl.InvalidEvent)
}

// ReleaseKernel implements cl.Driver.
func (d *Driver) ReleaseKernel(kernel cl.Kernel) error {
	return release(d, d.kernels, KindKernel, kernel, cl.InvalidKernel)
}

// ReleaseProgram implements cl.Driver.
func (d *Driver) ReleaseProgram(program cl.Program) error {
	return release(d, d.programs, KindProgram, program, cl.InvalidProgram)
}

// ReleaseCommandQueue implements cl.Driver.
func (d *Driver) ReleaseCommandQueue(q cl.Queue) error {
	return release(d, d.queues, KindQueue, q, cl.InvalidCommandQueue)
}

// ReleaseContext implements cl.Driver.
func (d *Driver) ReleaseContext(ctx cl.Context) error {
	return release(d, d.contexts, KindContext, ctx, cl.InvalidContext)
}

// ReleaseDevice implements cl.Driver. Root devices are not reference counted: the release is logged, and the
// device remains valid.
func (d *Driver) ReleaseDevice(device cl.Device) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validDevice(device) {
		return cl.InvalidDevice.Err()
	}
	if d.cfg.releaseFailures[KindDevice] {
		return cl.OutOfResources.Err()
	}
	d.releases = append(d.releases, Release{Kind: KindDevice, Handle: uintptr(device)})
	return nil
}
