// Package dtypes defines the closed set of element types a device matrix can hold.
//
// Each DType maps to one Go type (used for the host data), one OpenCL C type (used by the kernel source)
// and one kernel entry point (see package kernels). Adding a type means adding a DType here and a matching
// kernel in kernels/mul.cl.
package dtypes

import (
	"reflect"
	"strings"

	"github.com/x448/float16"
)

//go:generate go tool enumer -type=DType -output=gen_dtype_enumer.go dtypes.go

// DType is the element type of a matrix.
type DType int

const (
	// InvalidDType represents an invalid (or not set) dtype.
	InvalidDType DType = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64

	// Float16 is the IEEE 754 half-precision type. Devices only support it with the cl_khr_fp16 extension.
	Float16

	Float32

	// Float64 is the IEEE 754 double-precision type. Devices only support it with the cl_khr_fp64 extension.
	Float64
)

// Number is the set of Go types on which Go's own arithmetic operators give the device semantics.
type Number interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// Supported lists the Go types that can be used as matrix elements.
//
// float16.Float16 is stored as its raw 16 bits: don't use Go arithmetic operators on it.
type Supported interface {
	Number | float16.Float16
}

type dtypeInfo struct {
	goType    reflect.Type
	goName    string
	clType    string
	extension string
}

var dtypeInfos = [...]dtypeInfo{
	Int8:    {reflect.TypeOf(int8(0)), "int8", "char", ""},
	Int16:   {reflect.TypeOf(int16(0)), "int16", "short", ""},
	Int32:   {reflect.TypeOf(int32(0)), "int32", "int", ""},
	Int64:   {reflect.TypeOf(int64(0)), "int64", "long", ""},
	Uint8:   {reflect.TypeOf(uint8(0)), "uint8", "uchar", ""},
	Uint16:  {reflect.TypeOf(uint16(0)), "uint16", "ushort", ""},
	Uint32:  {reflect.TypeOf(uint32(0)), "uint32", "uint", ""},
	Uint64:  {reflect.TypeOf(uint64(0)), "uint64", "ulong", ""},
	Float16: {reflect.TypeOf(float16.Float16(0)), "float16", "half", "cl_khr_fp16"},
	Float32: {reflect.TypeOf(float32(0)), "float32", "float", ""},
	Float64: {reflect.TypeOf(float64(0)), "float64", "double", "cl_khr_fp64"},
}

func (dtype DType) info() (dtypeInfo, bool) {
	if dtype <= InvalidDType || int(dtype) >= len(dtypeInfos) {
		return dtypeInfo{}, false
	}
	return dtypeInfos[dtype], true
}

// IsSupported returns whether dtype is one of the element types matrices can hold.
func (dtype DType) IsSupported() bool {
	_, ok := dtype.info()
	return ok
}

// GoType returns the Go type used to hold values of dtype on the host, or nil for an invalid dtype.
func (dtype DType) GoType() reflect.Type {
	info, _ := dtype.info()
	return info.goType
}

// GoName returns the Go name of the element type (e.g. "int32", "float16").
// It's the suffix used by the kernel entry points.
func (dtype DType) GoName() string {
	info, ok := dtype.info()
	if !ok {
		return ""
	}
	return info.goName
}

// CLType returns the OpenCL C scalar type name corresponding to dtype (e.g. "int", "double").
func (dtype DType) CLType() string {
	info, _ := dtype.info()
	return info.clType
}

// Extension returns the OpenCL extension a device must expose to support dtype, or "" if none is needed.
func (dtype DType) Extension() string {
	info, _ := dtype.info()
	return info.extension
}

// Size returns the number of bytes used by one element of dtype, or 0 for an invalid dtype.
func (dtype DType) Size() int {
	info, ok := dtype.info()
	if !ok {
		return 0
	}
	return int(info.goType.Size())
}

// SizeForDimensions returns the number of bytes needed to store an array of dtype with the given dimensions.
func (dtype DType) SizeForDimensions(dimensions ...int) int {
	size := dtype.Size()
	for _, dim := range dimensions {
		size *= dim
	}
	return size
}

// IsFloat returns whether dtype is a floating point type.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64
}

// IsInt returns whether dtype is a signed or unsigned integer type.
func (dtype DType) IsInt() bool {
	return dtype >= Int8 && dtype <= Uint64
}

// IsUnsigned returns whether dtype is an unsigned integer type.
func (dtype DType) IsUnsigned() bool {
	return dtype >= Uint8 && dtype <= Uint64
}

// SupportedDTypes returns all valid dtypes, in definition order.
func SupportedDTypes() []DType {
	return DTypeValues()[1:]
}

// FromGenericsType returns the DType corresponding to the generic type T.
func FromGenericsType[T Supported]() DType {
	var t T
	switch any(t).(type) {
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float16.Float16:
		return Float16
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return InvalidDType
}

// FromGoType returns the DType for the given Go type, or InvalidDType if it is not supported.
func FromGoType(t reflect.Type) DType {
	for _, dtype := range SupportedDTypes() {
		if dtypeInfos[dtype].goType == t {
			return dtype
		}
	}
	return InvalidDType
}

// MapOfNames maps the enum name, the Go name, the OpenCL C name and common short aliases (in upper and lower case)
// to the corresponding DType.
var MapOfNames = map[string]DType{}

func init() {
	aliases := map[DType][]string{
		Int8:    {"I8", "S8"},
		Int16:   {"I16", "S16"},
		Int32:   {"I32", "S32"},
		Int64:   {"I64", "S64"},
		Uint8:   {"U8"},
		Uint16:  {"U16"},
		Uint32:  {"U32"},
		Uint64:  {"U64"},
		Float16: {"F16"},
		Float32: {"F32"},
		Float64: {"F64"},
	}
	for _, dtype := range SupportedDTypes() {
		names := append([]string{dtype.String(), dtype.GoName(), dtype.CLType()}, aliases[dtype]...)
		for _, name := range names {
			MapOfNames[name] = dtype
			MapOfNames[strings.ToLower(name)] = dtype
		}
	}
}
