//go:build cgo && (linux || darwin)

package opencl

/*
#include <stdlib.h>
#include "cl_api.h"
*/
import "C"
import (
	"os"
	"runtime"
	"strings"
	"unsafe"

	"github.com/gomlx/goclmm/cl"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// LibraryNames are the names of the OpenCL library tried, in order.
var LibraryNames = defaultLibraryNames()

func defaultLibraryNames() []string {
	if runtime.GOOS == "darwin" {
		return []string{"/System/Library/Frameworks/OpenCL.framework/OpenCL"}
	}
	return []string{"libOpenCL.so.1", "libOpenCL.so"}
}

func init() {
	cl.Register(DriverName, Load)
}

// OpenCL info parameters used by the driver.
const (
	platformProfile = 0x0900
	platformVersion = 0x0901
	platformName    = 0x0902
	platformVendor  = 0x0903

	deviceType             = 0x1000
	deviceMaxComputeUnits  = 0x1002
	deviceMaxWorkGroupSize = 0x1004
	deviceGlobalMemSize    = 0x101F
	deviceName             = 0x102B
	deviceVendor           = 0x102C
	driverVersion          = 0x102D
	deviceVersion          = 0x102F
	deviceExtensions       = 0x1030

	programBuildLog = 0x1183
)

// api holds the addresses of the OpenCL functions.
type api struct {
	clGetPlatformIDs, clGetPlatformInfo, clGetDeviceIDs, clGetDeviceInfo  unsafe.Pointer
	clCreateContext, clCreateCommandQueue                                 unsafe.Pointer
	clCreateCommandQueueWithProperties                                    unsafe.Pointer // OpenCL >= 2.0, optional.
	clCreateProgramWithSource, clBuildProgram, clGetProgramBuildInfo      unsafe.Pointer
	clCreateBuffer, clEnqueueWriteBuffer, clEnqueueReadBuffer             unsafe.Pointer
	clCreateKernel, clSetKernelArg, clEnqueueNDRangeKernel, clFinish      unsafe.Pointer
	clGetEventProfilingInfo                                               unsafe.Pointer
	clReleaseEvent, clReleaseKernel, clReleaseMemObject, clReleaseProgram unsafe.Pointer
	clReleaseCommandQueue, clReleaseContext                               unsafe.Pointer
	clReleaseDevice                                                       unsafe.Pointer // OpenCL >= 1.2, optional.
}

func (a *api) symbols() (required map[string]*unsafe.Pointer, optional map[string]*unsafe.Pointer) {
	required = map[string]*unsafe.Pointer{
		"clGetPlatformIDs":          &a.clGetPlatformIDs,
		"clGetPlatformInfo":         &a.clGetPlatformInfo,
		"clGetDeviceIDs":            &a.clGetDeviceIDs,
		"clGetDeviceInfo":           &a.clGetDeviceInfo,
		"clCreateContext":           &a.clCreateContext,
		"clCreateProgramWithSource": &a.clCreateProgramWithSource,
		"clBuildProgram":            &a.clBuildProgram,
		"clGetProgramBuildInfo":     &a.clGetProgramBuildInfo,
		"clCreateBuffer":            &a.clCreateBuffer,
		"clEnqueueWriteBuffer":      &a.clEnqueueWriteBuffer,
		"clEnqueueReadBuffer":       &a.clEnqueueReadBuffer,
		"clCreateKernel":            &a.clCreateKernel,
		"clSetKernelArg":            &a.clSetKernelArg,
		"clEnqueueNDRangeKernel":    &a.clEnqueueNDRangeKernel,
		"clFinish":                  &a.clFinish,
		"clGetEventProfilingInfo":   &a.clGetEventProfilingInfo,
		"clReleaseEvent":            &a.clReleaseEvent,
		"clReleaseKernel":           &a.clReleaseKernel,
		"clReleaseMemObject":        &a.clReleaseMemObject,
		"clReleaseProgram":          &a.clReleaseProgram,
		"clReleaseCommandQueue":     &a.clReleaseCommandQueue,
		"clReleaseContext":          &a.clReleaseContext,
	}
	optional = map[string]*unsafe.Pointer{
		"clCreateCommandQueue":               &a.clCreateCommandQueue,
		"clCreateCommandQueueWithProperties": &a.clCreateCommandQueueWithProperties,
		"clReleaseDevice":                    &a.clReleaseDevice,
	}
	return
}

// Driver implements cl.Driver with the system's OpenCL library.
type Driver struct {
	lib *libHandle
	api api
}

var _ cl.Driver = (*Driver)(nil)

// Load opens the OpenCL library and resolves its functions.
//
// The path in the environment variable GOCLMM_OPENCL_LIBRARY is used if set, otherwise LibraryNames are searched
// in the system library paths.
func Load() (cl.Driver, error) {
	var names []string
	if libPath := os.Getenv(LibraryEnv); libPath != "" {
		names = []string{libPath}
	} else {
		names = candidates(LibraryNames, libraryPaths("/etc/ld.so.conf"))
	}
	d := &Driver{}
	required, optional := d.api.symbols()
	requiredNames := make([]string, 0, len(required))
	for name := range required {
		requiredNames = append(requiredNames, name)
	}
	lib, err := loadLibrary(names, requiredNames)
	if err != nil {
		return nil, err
	}
	d.lib = lib
	for name, ptr := range required {
		if *ptr, err = lib.GetSymbolPointer(name); err != nil {
			return nil, err
		}
	}
	for name, ptr := range optional {
		if *ptr, err = lib.GetSymbolPointer(name); err != nil {
			klog.V(1).Infof("opencl: optional function %s not available in %s", name, lib.Name)
			*ptr = nil
		}
	}
	if d.api.clCreateCommandQueue == nil && d.api.clCreateCommandQueueWithProperties == nil {
		return nil, errors.Errorf("OpenCL library %q defines neither clCreateCommandQueue nor clCreateCommandQueueWithProperties", lib.Name)
	}
	return d, nil
}

// Name implements cl.Driver.
func (d *Driver) Name() string {
	return DriverName
}

// toError converts an OpenCL error code to an error with a stack trace, or nil for CL_SUCCESS.
func toError(status C.cl_int) error {
	return cl.Status(status).Err()
}

// PlatformIDs implements cl.Driver.
func (d *Driver) PlatformIDs() ([]cl.Platform, error) {
	var num C.cl_uint
	if err := toError(C.call_clGetPlatformIDs(d.api.clGetPlatformIDs, 0, nil, &num)); err != nil {
		return nil, err
	}
	if num == 0 {
		return nil, cl.PlatformNotFoundKHR.Err()
	}
	ids := cMallocArray[C.cl_platform_id](int(num))
	defer cFree(ids)
	if err := toError(C.call_clGetPlatformIDs(d.api.clGetPlatformIDs, num, ids, nil)); err != nil {
		return nil, err
	}
	platforms := make([]cl.Platform, num)
	for ii, id := range cDataToSlice(ids, int(num)) {
		platforms[ii] = cl.Platform(uintptr(unsafe.Pointer(id)))
	}
	return platforms, nil
}

// queryInfo calls an OpenCL clGet*Info function twice: first for the size and then for the value.
func queryInfo(query func(size C.size_t, value unsafe.Pointer, ret *C.size_t) C.cl_int) ([]byte, error) {
	var size C.size_t
	if err := toError(query(0, nil, &size)); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	buf := cMallocArray[byte](int(size))
	defer cFree(buf)
	if err := toError(query(size, unsafe.Pointer(buf), nil)); err != nil {
		return nil, err
	}
	return append([]byte(nil), cDataToSlice(buf, int(size))...), nil
}

func (d *Driver) platformString(p cl.Platform, param C.cl_platform_info) (string, error) {
	data, err := queryInfo(func(size C.size_t, value unsafe.Pointer, ret *C.size_t) C.cl_int {
		return C.call_clGetPlatformInfo(d.api.clGetPlatformInfo, platformID(p), param, size, value, ret)
	})
	return cBytesToString(data), err
}

// PlatformInfo implements cl.Driver.
func (d *Driver) PlatformInfo(p cl.Platform) (info cl.PlatformInfo, err error) {
	fields := []struct {
		param C.cl_platform_info
		dst   *string
	}{
		{platformName, &info.Name},
		{platformVendor, &info.Vendor},
		{platformVersion, &info.Version},
		{platformProfile, &info.Profile},
	}
	for _, field := range fields {
		if *field.dst, err = d.platformString(p, field.param); err != nil {
			return cl.PlatformInfo{}, err
		}
	}
	return info, nil
}

// DeviceIDs implements cl.Driver.
func (d *Driver) DeviceIDs(p cl.Platform, t cl.DeviceType) ([]cl.Device, error) {
	var num C.cl_uint
	if err := toError(C.call_clGetDeviceIDs(d.api.clGetDeviceIDs, platformID(p), C.cl_device_type(t), 0, nil, &num)); err != nil {
		return nil, err
	}
	if num == 0 {
		return nil, cl.DeviceNotFound.Err()
	}
	ids := cMallocArray[C.cl_device_id](int(num))
	defer cFree(ids)
	if err := toError(C.call_clGetDeviceIDs(d.api.clGetDeviceIDs, platformID(p), C.cl_device_type(t), num, ids, nil)); err != nil {
		return nil, err
	}
	devices := make([]cl.Device, num)
	for ii, id := range cDataToSlice(ids, int(num)) {
		devices[ii] = cl.Device(uintptr(unsafe.Pointer(id)))
	}
	return devices, nil
}

func (d *Driver) deviceInfo(device cl.Device, param C.cl_device_info) ([]byte, error) {
	return queryInfo(func(size C.size_t, value unsafe.Pointer, ret *C.size_t) C.cl_int {
		return C.call_clGetDeviceInfo(d.api.clGetDeviceInfo, deviceID(device), param, size, value, ret)
	})
}

// decodeUint reads a little-endian encoded unsigned integer of up to 8 bytes, as returned by clGetDeviceInfo
// for cl_uint, cl_ulong, size_t and cl_bitfield values.
func decodeUint(data []byte) uint64 {
	var v uint64
	for ii := len(data) - 1; ii >= 0 && ii < 8; ii-- {
		v = v<<8 | uint64(data[ii])
	}
	return v
}

// DeviceInfo implements cl.Driver.
func (d *Driver) DeviceInfo(device cl.Device) (info cl.DeviceInfo, err error) {
	strFields := []struct {
		param C.cl_device_info
		dst   *string
	}{
		{deviceName, &info.Name},
		{deviceVendor, &info.Vendor},
		{deviceVersion, &info.Version},
		{driverVersion, &info.DriverVersion},
	}
	for _, field := range strFields {
		data, err := d.deviceInfo(device, field.param)
		if err != nil {
			return cl.DeviceInfo{}, err
		}
		*field.dst = strings.TrimSpace(cBytesToString(data))
	}
	var data []byte
	if data, err = d.deviceInfo(device, deviceExtensions); err != nil {
		return cl.DeviceInfo{}, err
	}
	info.Extensions = strings.Fields(cBytesToString(data))
	if data, err = d.deviceInfo(device, deviceType); err != nil {
		return cl.DeviceInfo{}, err
	}
	info.Type = cl.DeviceType(decodeUint(data))
	if data, err = d.deviceInfo(device, deviceMaxComputeUnits); err != nil {
		return cl.DeviceInfo{}, err
	}
	info.ComputeUnits = int(decodeUint(data))
	if data, err = d.deviceInfo(device, deviceMaxWorkGroupSize); err != nil {
		return cl.DeviceInfo{}, err
	}
	info.MaxWorkGroupSize = int(decodeUint(data))
	if data, err = d.deviceInfo(device, deviceGlobalMemSize); err != nil {
		return cl.DeviceInfo{}, err
	}
	info.GlobalMemSize = decodeUint(data)
	return info, nil
}

// CreateContext implements cl.Driver.
func (d *Driver) CreateContext(device cl.Device) (cl.Context, error) {
	var status C.cl_int
	ctx := C.call_clCreateContext(d.api.clCreateContext, deviceID(device), &status)
	if err := toError(status); err != nil {
		return 0, err
	}
	return cl.Context(uintptr(unsafe.Pointer(ctx))), nil
}

// CreateCommandQueue implements cl.Driver. It uses clCreateCommandQueueWithProperties if available, and falls
// back to clCreateCommandQueue if the platform rejects it: an OpenCL 2.x loader may export it for 1.x platforms.
func (d *Driver) CreateCommandQueue(ctx cl.Context, device cl.Device, properties cl.QueueProperties) (cl.Queue, error) {
	props := C.cl_command_queue_properties(properties)
	var attempts []func() (cl.Queue, error)
	if d.api.clCreateCommandQueueWithProperties != nil {
		attempts = append(attempts, func() (cl.Queue, error) {
			var status C.cl_int
			q := C.call_clCreateCommandQueueWithProperties(d.api.clCreateCommandQueueWithProperties, contextID(ctx), deviceID(device), props, &status)
			return cl.Queue(uintptr(unsafe.Pointer(q))), toError(status)
		})
	}
	if d.api.clCreateCommandQueue != nil {
		attempts = append(attempts, func() (cl.Queue, error) {
			var status C.cl_int
			q := C.call_clCreateCommandQueue(d.api.clCreateCommandQueue, contextID(ctx), deviceID(device), props, &status)
			return cl.Queue(uintptr(unsafe.Pointer(q))), toError(status)
		})
	}
	return firstSuccess("clCreateCommandQueue", attempts...)
}

// firstSuccess returns the result of the first attempt that succeeds. Failed attempts followed by another one
// are logged; if all fail, the error of the last one is returned.
func firstSuccess[T any](name string, attempts ...func() (T, error)) (T, error) {
	var zero T
	if len(attempts) == 0 {
		return zero, errors.Errorf("OpenCL library has no entry point for %s", name)
	}
	var err error
	for ii, attempt := range attempts {
		var result T
		if result, err = attempt(); err == nil {
			return result, nil
		}
		if ii < len(attempts)-1 {
			klog.V(1).Infof("opencl: %s entry point #%d failed, trying the next one: %v", name, ii, err)
		}
	}
	return zero, err
}

// CreateProgramWithSource implements cl.Driver.
func (d *Driver) CreateProgramWithSource(ctx cl.Context, source string) (cl.Program, error) {
	sourceC := C.CString(source)
	defer C.free(unsafe.Pointer(sourceC))
	var status C.cl_int
	p := C.call_clCreateProgramWithSource(d.api.clCreateProgramWithSource, contextID(ctx), sourceC, C.size_t(len(source)), &status)
	if err := toError(status); err != nil {
		return 0, err
	}
	return cl.Program(uintptr(unsafe.Pointer(p))), nil
}

// BuildProgram implements cl.Driver.
func (d *Driver) BuildProgram(p cl.Program, device cl.Device, options string) error {
	optionsC := C.CString(options)
	defer C.free(unsafe.Pointer(optionsC))
	return toError(C.call_clBuildProgram(d.api.clBuildProgram, programID(p), deviceID(device), optionsC))
}

// ProgramBuildLog implements cl.Driver.
func (d *Driver) ProgramBuildLog(p cl.Program, device cl.Device) (string, error) {
	data, err := queryInfo(func(size C.size_t, value unsafe.Pointer, ret *C.size_t) C.cl_int {
		return C.call_clGetProgramBuildInfo(d.api.clGetProgramBuildInfo, programID(p), deviceID(device), programBuildLog, size, value, ret)
	})
	return cBytesToString(data), err
}

// CreateBuffer implements cl.Driver.
func (d *Driver) CreateBuffer(ctx cl.Context, flags cl.MemFlags, size int) (cl.Mem, error) {
	var status C.cl_int
	mem := C.call_clCreateBuffer(d.api.clCreateBuffer, contextID(ctx), C.cl_mem_flags(flags), C.size_t(size), &status)
	if err := toError(status); err != nil {
		return 0, err
	}
	return cl.Mem(uintptr(unsafe.Pointer(mem))), nil
}

// EnqueueWriteBuffer implements cl.Driver. The transfer is blocking.
func (d *Driver) EnqueueWriteBuffer(q cl.Queue, mem cl.Mem, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var pinner runtime.Pinner
	pinner.Pin(unsafe.SliceData(data))
	defer pinner.Unpin()
	return toError(C.call_clEnqueueWriteBuffer(d.api.clEnqueueWriteBuffer, queueID(q), memID(mem),
		C.size_t(len(data)), unsafe.Pointer(unsafe.SliceData(data))))
}

// EnqueueReadBuffer implements cl.Driver. The transfer is blocking.
func (d *Driver) EnqueueReadBuffer(q cl.Queue, mem cl.Mem, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var pinner runtime.Pinner
	pinner.Pin(unsafe.SliceData(data))
	defer pinner.Unpin()
	return toError(C.call_clEnqueueReadBuffer(d.api.clEnqueueReadBuffer, queueID(q), memID(mem),
		C.size_t(len(data)), unsafe.Pointer(unsafe.SliceData(data))))
}

// CreateKernel implements cl.Driver.
func (d *Driver) CreateKernel(p cl.Program, name string) (cl.Kernel, error) {
	nameC := C.CString(name)
	defer C.free(unsafe.Pointer(nameC))
	var status C.cl_int
	k := C.call_clCreateKernel(d.api.clCreateKernel, programID(p), nameC, &status)
	if err := toError(status); err != nil {
		return 0, err
	}
	return cl.Kernel(uintptr(unsafe.Pointer(k))), nil
}

// SetKernelArgInt32 implements cl.Driver.
func (d *Driver) SetKernelArgInt32(k cl.Kernel, index int, value int32) error {
	valueC := cMallocArray[C.cl_int](1)
	defer cFree(valueC)
	*valueC = C.cl_int(value)
	return toError(C.call_clSetKernelArg(d.api.clSetKernelArg, kernelID(k), C.cl_uint(index), cSizeOf[C.cl_int](), unsafe.Pointer(valueC)))
}

// SetKernelArgBuffer implements cl.Driver.
func (d *Driver) SetKernelArgBuffer(k cl.Kernel, index int, mem cl.Mem) error {
	memC := cMallocArray[C.cl_mem](1)
	defer cFree(memC)
	*memC = memID(mem)
	return toError(C.call_clSetKernelArg(d.api.clSetKernelArg, kernelID(k), C.cl_uint(index), cSizeOf[C.cl_mem](), unsafe.Pointer(memC)))
}

// EnqueueNDRangeKernel implements cl.Driver. It waits for the kernel to complete before returning.
func (d *Driver) EnqueueNDRangeKernel(q cl.Queue, k cl.Kernel, global, local []int) (cl.Event, error) {
	if len(global) == 0 || (local != nil && len(local) != len(global)) {
		return 0, cl.InvalidWorkDimension.Err()
	}
	globalC := cMallocArray[C.size_t](len(global))
	defer cFree(globalC)
	for ii, size := range global {
		cDataToSlice(globalC, len(global))[ii] = C.size_t(size)
	}
	var localC *C.size_t
	if local != nil {
		localC = cMallocArray[C.size_t](len(local))
		defer cFree(localC)
		for ii, size := range local {
			cDataToSlice(localC, len(local))[ii] = C.size_t(size)
		}
	}
	eventC := cMallocArray[C.cl_event](1)
	defer cFree(eventC)
	err := toError(C.call_clEnqueueNDRangeKernel(d.api.clEnqueueNDRangeKernel, queueID(q), kernelID(k),
		C.cl_uint(len(global)), globalC, localC, eventC))
	if err != nil {
		return 0, err
	}
	event := cl.Event(uintptr(unsafe.Pointer(*eventC)))
	if err = d.Finish(q); err != nil {
		if errRelease := d.ReleaseEvent(event); errRelease != nil {
			klog.Errorf("opencl: failed to release event of failed dispatch: %+v", errRelease)
		}
		return 0, err
	}
	return event, nil
}

// Finish implements cl.Driver.
func (d *Driver) Finish(q cl.Queue) error {
	return toError(C.call_clFinish(d.api.clFinish, queueID(q)))
}

// EventProfilingInfo implements cl.Driver.
func (d *Driver) EventProfilingInfo(event cl.Event, info cl.ProfilingInfo) (uint64, error) {
	valueC := cMallocArray[C.cl_ulong](1)
	defer cFree(valueC)
	if err := toError(C.call_clGetEventProfilingInfo(d.api.clGetEventProfilingInfo, eventID(event), C.cl_profiling_info(info), valueC)); err != nil {
		return 0, err
	}
	return uint64(*valueC), nil
}

func (d *Driver) release(fn unsafe.Pointer, handle uintptr) error {
	return toError(C.call_clRelease(fn, unsafe.Pointer(handle)))
}

// ReleaseEvent implements cl.Driver.
func (d *Driver) ReleaseEvent(event cl.Event) error {
	return d.release(d.api.clReleaseEvent, uintptr(event))
}

// ReleaseKernel implements cl.Driver.
func (d *Driver) ReleaseKernel(k cl.Kernel) error {
	return d.release(d.api.clReleaseKernel, uintptr(k))
}

// ReleaseMemObject implements cl.Driver.
func (d *Driver) ReleaseMemObject(mem cl.Mem) error {
	return d.release(d.api.clReleaseMemObject, uintptr(mem))
}

// ReleaseProgram implements cl.Driver.
func (d *Driver) ReleaseProgram(p cl.Program) error {
	return d.release(d.api.clReleaseProgram, uintptr(p))
}

// ReleaseCommandQueue implements cl.Driver.
func (d *Driver) ReleaseCommandQueue(q cl.Queue) error {
	return d.release(d.api.clReleaseCommandQueue, uintptr(q))
}

// ReleaseContext implements cl.Driver.
func (d *Driver) ReleaseContext(ctx cl.Context) error {
	return d.release(d.api.clReleaseContext, uintptr(ctx))
}

// ReleaseDevice implements cl.Driver. It is a no-op on OpenCL 1.1 libraries, where devices are not reference
// counted.
func (d *Driver) ReleaseDevice(device cl.Device) error {
	if d.api.clReleaseDevice == nil {
		return nil
	}
	return d.release(d.api.clReleaseDevice, uintptr(device))
}

// Conversions from handles to the C types. Handles hold pointers owned by the OpenCL library.

func platformID(p cl.Platform) C.cl_platform_id { return C.cl_platform_id(unsafe.Pointer(uintptr(p))) }
func deviceID(d cl.Device) C.cl_device_id       { return C.cl_device_id(unsafe.Pointer(uintptr(d))) }
func contextID(c cl.Context) C.cl_context       { return C.cl_context(unsafe.Pointer(uintptr(c))) }
func queueID(q cl.Queue) C.cl_command_queue     { return C.cl_command_queue(unsafe.Pointer(uintptr(q))) }
func programID(p cl.Program) C.cl_program       { return C.cl_program(unsafe.Pointer(uintptr(p))) }
func memID(m cl.Mem) C.cl_mem                   { return C.cl_mem(unsafe.Pointer(uintptr(m))) }
func kernelID(k cl.Kernel) C.cl_kernel          { return C.cl_kernel(unsafe.Pointer(uintptr(k))) }
func eventID(e cl.Event) C.cl_event             { return C.cl_event(unsafe.Pointer(uintptr(e))) }
