//go:build cgo && (linux || darwin)

package opencl

/*
#include <stdlib.h>
*/
import "C"
import (
	"reflect"
	"unsafe"
)

// File implements several CGO helper utilities.

// cFree calls C.free() on the unsafe.Pointer version of data.
func cFree[T any](data *T) {
	C.free(unsafe.Pointer(data))
}

// cSizeOf returns the size of the given type in bytes.
func cSizeOf[T any]() C.size_t {
	var ptr *T
	return C.size_t(reflect.TypeOf(ptr).Elem().Size())
}

// cMallocArray allocates space to hold n copies of T in the C heap and initializes it to zero.
// It must be manually freed with cFree() by the user.
func cMallocArray[T any](n int) (ptr *T) {
	size := cSizeOf[T]()
	return (*T)(C.calloc(C.size_t(max(n, 1)), size))
}

// cDataToSlice converts a C pointer to a Go slice sharing the memory.
func cDataToSlice[T any](data *T, count int) []T {
	return unsafe.Slice(data, count)
}

// cBytesToString converts a C char buffer, possibly null-terminated, to a Go string (the bytes are copied).
func cBytesToString(data []byte) string {
	for ii, b := range data {
		if b == 0 {
			return string(data[:ii])
		}
	}
	return string(data)
}
