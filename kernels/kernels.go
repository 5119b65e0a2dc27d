// Package kernels holds the OpenCL C source of the matrix multiplication kernels and the naming convention of
// their entry points.
package kernels

import (
	_ "embed"

	"github.com/gomlx/goclmm/dtypes"
	"github.com/pkg/errors"
)

//go:generate go run ../internal/cmd/kernels_codegen

// Source is the OpenCL C program with one multiplication kernel per supported element type.
//
// The float16 and float64 kernels are only compiled if the device defines cl_khr_fp16 and cl_khr_fp64 respectively.
//
//go:embed mul.cl
var Source string

// EntryPointPrefix is the prefix of every multiplication kernel name.
const EntryPointPrefix = "mul_"

// NumArgs is the number of arguments of every multiplication kernel: N, M, K, left, right and out.
const NumArgs = 6

// LocalSize is the size of each dimension of the work-group used to dispatch a multiplication.
// The rows of the left matrix and the columns of the right matrix must be divisible by it.
const LocalSize = 4

// EntryPoint returns the kernel name that multiplies matrices of the given dtype, e.g. "mul_float32".
func EntryPoint(dtype dtypes.DType) (string, error) {
	if !dtype.IsSupported() {
		return "", errors.Errorf("no multiplication kernel for dtype %s", dtype)
	}
	return EntryPointPrefix + dtype.GoName(), nil
}

// DTypeForEntryPoint is the inverse of EntryPoint: it returns the dtype multiplied by the named kernel,
// or false if name doesn't follow the naming convention.
func DTypeForEntryPoint(name string) (dtypes.DType, bool) {
	if len(name) <= len(EntryPointPrefix) || name[:len(EntryPointPrefix)] != EntryPointPrefix {
		return dtypes.InvalidDType, false
	}
	goName := name[len(EntryPointPrefix):]
	for _, dtype := range dtypes.SupportedDTypes() {
		if dtype.GoName() == goName {
			return dtype, true
		}
	}
	return dtypes.InvalidDType, false
}
