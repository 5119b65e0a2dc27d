// Package goclmm multiplies dense matrices on an OpenCL device, with every device resource scoped to a
// caller-supplied function.
//
// The entry point is Scope (or Run): it selects the first device of the first platform, compiles the
// multiplication kernels, and calls the given body with a Session. When the body returns, or panics, every
// resource of the session is released in order: buffers, program, command queue, context and device.
//
// Matrices are created on a session with NewMatrix or NewMatrixFrom. Their dimensions are types (see package
// dims), so multiplying matrices with incompatible shapes doesn't compile:
//
//	err := goclmm.Run(func(s *goclmm.Session) error {
//		a, err := goclmm.NewMatrixFrom[dims.D4, dims.D8](s, aValues)
//		...
//		b, err := goclmm.NewMatrixFrom[dims.D8, dims.D4](s, bValues)
//		...
//		c := goclmm.Mul(a, b) // Matrix[dims.D4, dims.D4, float32]
//		fmt.Println(c.Host())
//		return nil
//	})
//
// The device driver is selected with WithDriver or WithDriverName, or with the environment variable
// GOCLMM_DRIVER. The default "opencl" driver uses the system's OpenCL library; the "host" driver emulates a
// device in Go, and is useful for tests.
package goclmm

import (
	// Register the drivers.
	_ "github.com/gomlx/goclmm/cl/host"
	_ "github.com/gomlx/goclmm/cl/opencl"
)
