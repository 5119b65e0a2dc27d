// Package reference implements matrix multiplication on the host, to verify the results computed on a device.
package reference

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/gomlx/goclmm/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/mat"
)

// Multiply returns the n x k product of left (n x m) and right (m x k), all in row-major order.
//
// It accumulates like the device kernels do: in T for integers (overflows wrap around) and floats, except for
// float16.Float16 that accumulates in float32.
func Multiply[T dtypes.Supported](left, right []T, n, m, k int) ([]T, error) {
	if len(left) != n*m || len(right) != m*k {
		return nil, errors.Errorf("reference.Multiply: got %d and %d elements for [%dx%d] x [%dx%d] matrices",
			len(left), len(right), n, m, m, k)
	}
	output := make([]T, n*k)
	switch l := any(left).(type) {
	case []int8:
		multiply(l, any(right).([]int8), any(output).([]int8), n, m, k)
	case []int16:
		multiply(l, any(right).([]int16), any(output).([]int16), n, m, k)
	case []int32:
		multiply(l, any(right).([]int32), any(output).([]int32), n, m, k)
	case []int64:
		multiply(l, any(right).([]int64), any(output).([]int64), n, m, k)
	case []uint8:
		multiply(l, any(right).([]uint8), any(output).([]uint8), n, m, k)
	case []uint16:
		multiply(l, any(right).([]uint16), any(output).([]uint16), n, m, k)
	case []uint32:
		multiply(l, any(right).([]uint32), any(output).([]uint32), n, m, k)
	case []uint64:
		multiply(l, any(right).([]uint64), any(output).([]uint64), n, m, k)
	case []float32:
		multiply(l, any(right).([]float32), any(output).([]float32), n, m, k)
	case []float64:
		multiply(l, any(right).([]float64), any(output).([]float64), n, m, k)
	case []float16.Float16:
		multiplyFloat16(l, any(right).([]float16.Float16), any(output).([]float16.Float16), n, m, k)
	}
	return output, nil
}

func multiply[T dtypes.Number](left, right, output []T, n, m, k int) {
	for i := range n {
		for j := range k {
			var sum T
			for x := range m {
				sum += left[i*m+x] * right[x*k+j]
			}
			output[i*k+j] = sum
		}
	}
}

func multiplyFloat16(left, right, output []float16.Float16, n, m, k int) {
	for i := range n {
		for j := range k {
			var sum float32
			for x := range m {
				sum += left[i*m+x].Float32() * right[x*k+j].Float32()
			}
			output[i*k+j] = float16.Fromfloat32(sum)
		}
	}
}

// Dense converts a row-major matrix to a gonum dense matrix of float64.
func Dense[T dtypes.Supported](values []T, rows, cols int) *mat.Dense {
	data := make([]float64, len(values))
	for ii, v := range values {
		data[ii] = dtypes.ToFloat64(v)
	}
	return mat.NewDense(rows, cols, data)
}

// MultiplyDense returns left x right computed by gonum, accumulating in float64.
// It panics if the shapes are not compatible.
func MultiplyDense(left, right mat.Matrix) *mat.Dense {
	var output mat.Dense
	output.Mul(left, right)
	return &output
}

// Equal compares the values element-wise, and returns the index of the first difference, or -1 if they are
// equal. Slices with different lengths differ at the length of the shortest.
func Equal[T comparable](got, want []T) int {
	for ii := range min(len(got), len(want)) {
		if got[ii] != want[ii] {
			return ii
		}
	}
	if len(got) != len(want) {
		return min(len(got), len(want))
	}
	return -1
}

// AllClose compares the values element-wise with an absolute tolerance, and returns the index of the first
// element that is not close, or -1 if all are. NaN is never close to anything.
func AllClose[T dtypes.Supported](got, want []T, tolerance float64) int {
	for ii := range min(len(got), len(want)) {
		if !isClose(got[ii], want[ii], tolerance) {
			return ii
		}
	}
	if len(got) != len(want) {
		return min(len(got), len(want))
	}
	return -1
}

func isClose[T dtypes.Supported](a, b T, tolerance float64) bool {
	switch x := any(a).(type) {
	case float32:
		y := any(b).(float32)
		diff := math32.Abs(x - y)
		return !math32.IsNaN(diff) && diff <= float32(tolerance)
	case float16.Float16:
		y := any(b).(float16.Float16)
		diff := math32.Abs(x.Float32() - y.Float32())
		return !math32.IsNaN(diff) && diff <= float32(tolerance)
	}
	diff := math.Abs(dtypes.ToFloat64(a) - dtypes.ToFloat64(b))
	return !math.IsNaN(diff) && diff <= tolerance
}
