package reference

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestMultiply(t *testing.T) {
	// [2x3] x [3x2]
	left := []int32{1, 2, 3, 4, 5, 6}
	right := []int32{7, 8, 9, 10, 11, 12}
	got, err := Multiply(left, right, 2, 3, 2)
	require.NoError(t, err)
	require.Equal(t, []int32{58, 64, 139, 154}, got)

	_, err = Multiply(left, right, 3, 3, 2)
	require.Error(t, err)

	// Overflow wraps around like on the device.
	gotU8, err := Multiply([]uint8{16}, []uint8{17}, 1, 1, 1)
	require.NoError(t, err)
	require.Equal(t, []uint8{16 * 17 % 256}, gotU8)

	half := func(values ...float32) []float16.Float16 {
		result := make([]float16.Float16, len(values))
		for ii, v := range values {
			result[ii] = float16.Fromfloat32(v)
		}
		return result
	}
	gotF16, err := Multiply(half(0.5, 1.5), half(2, 4), 1, 2, 1)
	require.NoError(t, err)
	require.Equal(t, half(7), gotF16)
}

func TestMultiplyDense(t *testing.T) {
	left := []float64{1, 2, 3, 4, 5, 6}
	right := []float64{0.5, -1, 2, 0, 1, 1}
	want, err := Multiply(left, right, 2, 3, 2)
	require.NoError(t, err)
	got := MultiplyDense(Dense(left, 2, 3), Dense(right, 3, 2))
	rows, cols := got.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 2, cols)
	require.Equal(t, -1, AllClose(got.RawMatrix().Data, want, 1e-12))

	gotInt := MultiplyDense(Dense([]int16{1, 2, 3, 4}, 2, 2), Dense([]int16{1, 0, 0, 1}, 2, 2))
	require.Equal(t, []float64{1, 2, 3, 4}, gotInt.RawMatrix().Data)
}

func TestCompare(t *testing.T) {
	require.Equal(t, -1, Equal([]int8{1, 2, 3}, []int8{1, 2, 3}))
	require.Equal(t, 1, Equal([]int8{1, 5, 3}, []int8{1, 2, 3}))
	require.Equal(t, 2, Equal([]int8{1, 2}, []int8{1, 2, 3}))

	require.Equal(t, -1, AllClose([]float32{1, 2.00001}, []float32{1, 2}, 1e-4))
	require.Equal(t, 1, AllClose([]float32{1, 2.001}, []float32{1, 2}, 1e-4))
	require.Equal(t, 0, AllClose([]float64{nan()}, []float64{nan()}, 1e-4))
	require.Equal(t, -1, AllClose([]uint32{10}, []uint32{10}, 0))
	require.Equal(t, -1, AllClose([]float16.Float16{float16.Fromfloat32(1)}, []float16.Float16{float16.Fromfloat32(1.0005)}, 1e-3))
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}
