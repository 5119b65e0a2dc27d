package goclmm

import (
	"github.com/gomlx/goclmm/cl"
	"github.com/gomlx/goclmm/kernels"
)

type config struct {
	driver       cl.Driver
	driverName   string
	deviceType   cl.DeviceType
	kernelSource string
}

// Option configures the session created by Scope and Run.
type Option func(c *config)

func newConfig(options []Option) *config {
	c := &config{
		deviceType:   cl.DeviceTypeAll,
		kernelSource: kernels.Source,
	}
	for _, option := range options {
		option(c)
	}
	if c.driver == nil && c.driverName == "" {
		c.driverName = cl.DefaultDriver()
	}
	return c
}

// WithDriver sets the driver used by the session. It takes precedence over WithDriverName.
func WithDriver(driver cl.Driver) Option {
	return func(c *config) { c.driver = driver }
}

// WithDriverName selects a driver registered in package cl, e.g. "opencl" or "host".
//
// The default is the value of the environment variable GOCLMM_DRIVER, or "opencl" if it is not set.
func WithDriverName(name string) Option {
	return func(c *config) { c.driverName = name }
}

// WithDeviceType restricts the device selection to the given classes. The default is cl.DeviceTypeAll:
// the first device of the first platform is used.
func WithDeviceType(deviceType cl.DeviceType) Option {
	return func(c *config) { c.deviceType = deviceType }
}

// WithKernelSource replaces the program compiled by the session. It must define the multiplication kernels
// following the conventions of package kernels. The default is kernels.Source.
func WithKernelSource(source string) Option {
	return func(c *config) { c.kernelSource = source }
}
