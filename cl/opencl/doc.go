// Package opencl implements a cl.Driver on top of the system's OpenCL library (the ICD loader).
//
// The library is loaded at runtime with dlopen(3) the first time the driver is requested, so programs using this
// package can be built and run on machines without OpenCL: requesting the driver then fails with an error.
//
// It is registered with the name "opencl":
//
//	driver, err := cl.Get("opencl")
//
// The library is searched with the names in LibraryNames, in the paths in LD_LIBRARY_PATH and /etc/ld.so.conf.
// Set the environment variable GOCLMM_OPENCL_LIBRARY to the full path of the library to override the search.
//
// It requires cgo, on linux or darwin. Elsewhere the driver is registered, but loading it always fails.
package opencl

const (
	// DriverName is the name under which the driver is registered in package cl.
	DriverName = "opencl"

	// LibraryEnv is the environment variable with the path of the OpenCL library to use.
	LibraryEnv = "GOCLMM_OPENCL_LIBRARY"
)
