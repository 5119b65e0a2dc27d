package goclmm_test

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/goclmm"
	"github.com/gomlx/goclmm/cl"
	"github.com/gomlx/goclmm/cl/host"
	"github.com/gomlx/goclmm/dims"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestScopeResult(t *testing.T) {
	sum, err := goclmm.Scope(func(s *goclmm.Session) (int64, error) {
		a := capture(goclmm.NewMatrixFrom[dims.D4, dims.D4](s, []int64{
			1, 1, 1, 1,
			1, 1, 1, 1,
			1, 1, 1, 1,
			1, 1, 1, 1,
		})).Test(t)
		var sum int64
		for _, v := range goclmm.Mul(a, a).Host() {
			sum += v
		}
		return sum, nil
	}, driverOption())
	require.NoError(t, err)
	require.Equal(t, int64(16*4), sum)
}

func TestScopeBodyError(t *testing.T) {
	d := host.New()
	errBody := errors.New("body failed")
	result, err := goclmm.Scope(func(s *goclmm.Session) ([]int32, error) {
		_ = capture(goclmm.NewMatrix[dims.D4, dims.D4, int32](s)).Test(t)
		return []int32{1}, errBody
	}, goclmm.WithDriver(d))
	require.ErrorIs(t, err, errBody)
	require.Nil(t, result)
	requireNothingLive(t, d)
}

func TestScopePanic(t *testing.T) {
	d := host.New()
	errPanic := errors.New("body panicked")
	err := exceptions.TryCatch[error](func() {
		_ = goclmm.Run(func(s *goclmm.Session) error {
			_ = capture(goclmm.NewMatrix[dims.D4, dims.D4, int32](s)).Test(t)
			panic(errPanic)
		}, goclmm.WithDriver(d))
	})
	require.ErrorIs(t, err, errPanic)
	requireNothingLive(t, d)
	require.Len(t, d.Releases(), 5)
}

func TestTeardownFailure(t *testing.T) {
	d := host.New(host.WithReleaseFailure(host.KindProgram))
	result, err := goclmm.Scope(func(s *goclmm.Session) (int, error) {
		_ = capture(goclmm.NewMatrix[dims.D4, dims.D4, int32](s)).Test(t)
		return 7, nil
	}, goclmm.WithDriver(d))
	gerr := requireKind(t, err, goclmm.ErrTeardownFailed)
	require.Zero(t, result)
	require.Equal(t, "clReleaseProgram", gerr.Call)
	require.Empty(t, gerr.Suppressed)
	require.ErrorIs(t, err, cl.OutOfResources)

	// Every other release was still attempted.
	require.Equal(t, 1, d.Live(host.KindProgram))
	require.Zero(t, d.Live(host.KindMem))
	require.Zero(t, d.Live(host.KindQueue))
	require.Zero(t, d.Live(host.KindContext))
	require.Equal(t, []host.Kind{host.KindMem, host.KindQueue, host.KindContext, host.KindDevice}, releasedKinds(d))
}

func TestTeardownMultipleFailures(t *testing.T) {
	d := host.New(host.WithReleaseFailure(host.KindMem, host.KindContext))
	err := goclmm.Run(func(s *goclmm.Session) error {
		_ = capture(goclmm.NewMatrix[dims.D4, dims.D4, int32](s)).Test(t)
		_ = capture(goclmm.NewMatrix[dims.D4, dims.D4, int32](s)).Test(t)
		return nil
	}, goclmm.WithDriver(d))
	gerr := requireKind(t, err, goclmm.ErrTeardownFailed)
	require.Equal(t, "clReleaseMemObject", gerr.Call)
	require.Len(t, gerr.Suppressed, 2)
	require.Contains(t, gerr.Suppressed[1].Error(), "clReleaseContext")
	require.Contains(t, err.Error(), "(and 2 more failures)")
	require.Equal(t, []host.Kind{host.KindProgram, host.KindQueue, host.KindDevice}, releasedKinds(d))
}

func TestTeardownFailureAfterBodyError(t *testing.T) {
	d := host.New(host.WithReleaseFailure(host.KindQueue))
	errBody := errors.New("body failed")
	err := goclmm.Run(func(s *goclmm.Session) error {
		return errBody
	}, goclmm.WithDriver(d))
	require.ErrorIs(t, err, errBody)
	require.NotErrorIs(t, err, goclmm.ErrTeardownFailed)
	require.Equal(t, []host.Kind{host.KindProgram, host.KindContext, host.KindDevice}, releasedKinds(d))
}

func TestKernelReleaseFailure(t *testing.T) {
	d := host.New(host.WithReleaseFailure(host.KindKernel))
	err := goclmm.Run(func(s *goclmm.Session) error {
		a := capture(goclmm.NewMatrix[dims.D4, dims.D4, int32](s)).Test(t)
		_, err := goclmm.Multiply(a, a, nil)
		gerr := requireKind(t, err, goclmm.ErrTeardownFailed)
		require.Equal(t, "clReleaseKernel", gerr.Call)
		return nil
	}, goclmm.WithDriver(d))
	require.NoError(t, err)
	require.Equal(t, 1, d.Dispatches())
	require.Zero(t, d.Live(host.KindEvent))
}
