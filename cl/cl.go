// Package cl abstracts the subset of the OpenCL API used to multiply matrices on a device.
//
// Objects are represented by opaque handles, owned by the Driver that created them. A handle must be released
// exactly once, with the matching Driver.Release* method. Errors returned by a Driver wrap a Status with the
// OpenCL error code (see StatusOf).
//
// Two drivers are provided: "opencl" (package cl/opencl) loads the system's OpenCL library, and "host"
// (package cl/host) emulates a device in pure Go.
package cl

import (
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// Handles to OpenCL objects. The zero value is never a valid handle.
type (
	Platform uintptr
	Device   uintptr
	Context  uintptr
	Queue    uintptr
	Program  uintptr
	Mem      uintptr
	Kernel   uintptr
	Event    uintptr
)

// DeviceType is a bit set of device classes, as in cl_device_type.
type DeviceType uint64

const (
	DeviceTypeDefault     DeviceType = 1 << 0
	DeviceTypeCPU         DeviceType = 1 << 1
	DeviceTypeGPU         DeviceType = 1 << 2
	DeviceTypeAccelerator DeviceType = 1 << 3
	DeviceTypeCustom      DeviceType = 1 << 4
	DeviceTypeAll         DeviceType = 0xFFFFFFFF
)

var deviceTypeNames = []struct {
	t    DeviceType
	name string
}{
	{DeviceTypeDefault, "default"},
	{DeviceTypeCPU, "cpu"},
	{DeviceTypeGPU, "gpu"},
	{DeviceTypeAccelerator, "accelerator"},
	{DeviceTypeCustom, "custom"},
}

// String returns the names of the classes in the set joined by "|", or "all".
func (t DeviceType) String() string {
	if t == DeviceTypeAll {
		return "all"
	}
	var parts []string
	for _, entry := range deviceTypeNames {
		if t&entry.t != 0 {
			parts = append(parts, entry.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseDeviceType parses a device class name ("all", "default", "cpu", "gpu", "accelerator" or "custom").
func ParseDeviceType(name string) (DeviceType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "all" || name == "" {
		return DeviceTypeAll, nil
	}
	for _, entry := range deviceTypeNames {
		if entry.name == name {
			return entry.t, nil
		}
	}
	return 0, errors.Errorf("unknown device type %q", name)
}

// MemFlags configures a buffer, as in cl_mem_flags.
type MemFlags uint64

const (
	MemReadWrite MemFlags = 1 << 0
	MemWriteOnly MemFlags = 1 << 1
	MemReadOnly  MemFlags = 1 << 2
)

// QueueProperties configures a command queue, as in cl_command_queue_properties.
type QueueProperties uint64

const (
	QueueOutOfOrderExecModeEnable QueueProperties = 1 << 0
	QueueProfilingEnable          QueueProperties = 1 << 1
)

// ProfilingInfo selects one of the timestamps (in nanoseconds) recorded for a command, as in cl_profiling_info.
type ProfilingInfo uint32

const (
	ProfilingCommandQueued ProfilingInfo = 0x1280
	ProfilingCommandSubmit ProfilingInfo = 0x1281
	ProfilingCommandStart  ProfilingInfo = 0x1282
	ProfilingCommandEnd    ProfilingInfo = 0x1283
)

// PlatformInfo describes a platform.
type PlatformInfo struct {
	Name, Vendor, Version, Profile string
}

// DeviceInfo describes a device.
type DeviceInfo struct {
	Name, Vendor, Version, DriverVersion string
	Type                                 DeviceType
	Extensions                           []string
	ComputeUnits                         int
	MaxWorkGroupSize                     int
	GlobalMemSize                        uint64
}

// HasExtension returns whether the device exposes the given OpenCL extension (e.g. "cl_khr_fp64").
func (info DeviceInfo) HasExtension(extension string) bool {
	return slices.Contains(info.Extensions, extension)
}
