// Package random generates matrices with uniformly distributed values, for tests and benchmarks.
package random

import (
	"math/rand/v2"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/goclmm"
	"github.com/gomlx/goclmm/dims"
	"github.com/gomlx/goclmm/dtypes"
)

// New returns a deterministic generator for the given seed.
func New(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
}

// Uniform returns n values sampled uniformly from [lo, hi).
//
// It panics if the range is empty.
func Uniform[T dtypes.Supported](rng *rand.Rand, n int, lo, hi T) []T {
	dtype := dtypes.FromGenericsType[T]()
	values := make([]T, n)
	switch {
	case dtype.IsFloat():
		flo, fhi := dtypes.ToFloat64(lo), dtypes.ToFloat64(hi)
		if !(flo < fhi) {
			exceptions.Panicf("random.Uniform: empty range [%g, %g)", flo, fhi)
		}
		for ii := range values {
			// Rounding to T may reach hi: sample again.
			for {
				values[ii] = dtypes.FromFloat64[T](flo + (fhi-flo)*rng.Float64())
				if dtypes.ToFloat64(values[ii]) < fhi {
					break
				}
			}
		}

	case dtype.IsUnsigned():
		ulo, uhi := reflect.ValueOf(lo).Uint(), reflect.ValueOf(hi).Uint()
		if ulo >= uhi {
			exceptions.Panicf("random.Uniform: empty range [%d, %d)", ulo, uhi)
		}
		for ii := range values {
			reflect.ValueOf(&values[ii]).Elem().SetUint(ulo + rng.Uint64N(uhi-ulo))
		}

	default:
		ilo, ihi := reflect.ValueOf(lo).Int(), reflect.ValueOf(hi).Int()
		if ilo >= ihi {
			exceptions.Panicf("random.Uniform: empty range [%d, %d)", ilo, ihi)
		}
		span := uint64(ihi - ilo)
		for ii := range values {
			reflect.ValueOf(&values[ii]).Elem().SetInt(ilo + int64(rng.Uint64N(span)))
		}
	}
	return values
}

// Values returns the R*C values, in row-major order, of a random matrix with elements in [lo, hi).
func Values[R, C dims.Dim, T dtypes.Supported](rng *rand.Rand, lo, hi T) []T {
	return Uniform(rng, dims.Len[R]()*dims.Len[C](), lo, hi)
}

// NewMatrix creates a matrix on the session with random elements sampled from [lo, hi).
// The matrix is not staged.
func NewMatrix[R, C dims.Dim, T dtypes.Supported](s *goclmm.Session, rng *rand.Rand, lo, hi T) (*goclmm.Matrix[R, C, T], error) {
	return goclmm.NewMatrixFrom[R, C](s, Values[R, C](rng, lo, hi))
}
