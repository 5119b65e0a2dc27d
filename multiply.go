package goclmm

import (
	"time"

	"github.com/gomlx/goclmm/cl"
	"github.com/gomlx/goclmm/dims"
	"github.com/gomlx/goclmm/dtypes"
	"github.com/gomlx/goclmm/kernels"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TimingSink receives the device execution time of each multiplication kernel, as measured by the device
// profiling counters.
type TimingSink func(elapsed time.Duration)

// Multiply returns left x right, computed on the device.
//
// Both operands are staged first, so it always uses their current host data. The result is a new matrix,
// allocated on the same session, with its host data already retrieved. If sink is not nil, it is called with
// the time the kernel took on the device.
//
// The rows of left (N) and the columns of right (K) must be multiples of kernels.LocalSize: the dispatch
// uses 4x4 work-groups. Otherwise the device is expected to reject the dispatch with ErrDispatchFailed.
func Multiply[N, M, K dims.Dim, T dtypes.Supported](left *Matrix[N, M, T], right *Matrix[M, K, T], sink TimingSink) (*Matrix[N, K, T], error) {
	s := left.session
	if right.session != s {
		return nil, newError(ErrSessionMismatch, "", errors.Errorf("left operand in %s, right operand in %s", s, right.session))
	}
	if err := left.Stage(); err != nil {
		return nil, err
	}
	if err := right.Stage(); err != nil {
		return nil, err
	}
	output, err := NewMatrix[N, K, T](s)
	if err != nil {
		return nil, err
	}
	elapsed, err := s.dispatch(output.DType(), dims.Len[N](), dims.Len[M](), dims.Len[K](), left.buffer, right.buffer, output.buffer,
		func() error { return output.Retrieve() })
	if err != nil {
		return nil, err
	}
	if sink != nil {
		sink(elapsed)
	}
	return output, nil
}

// Mul returns left x right, like Multiply with no timing sink, but it panics with the error if the
// multiplication fails.
//
// Within Scope (or Run) the session is still torn down before the panic propagates.
func Mul[N, M, K dims.Dim, T dtypes.Supported](left *Matrix[N, M, T], right *Matrix[M, K, T]) *Matrix[N, K, T] {
	output, err := Multiply(left, right, nil)
	if err != nil {
		panic(err)
	}
	return output
}

// dispatch runs the multiplication kernel for dtype on the buffers with the given indices, calls retrieve
// once the kernel completed, and returns the time the kernel took on the device.
func (s *Session) dispatch(dtype dtypes.DType, n, m, k int, left, right, output int, retrieve func() error) (elapsed time.Duration, err error) {
	mems := make([]cl.Mem, 0, 3)
	for _, index := range []int{left, right, output} {
		mem, err := s.buffer(index)
		if err != nil {
			return 0, err
		}
		mems = append(mems, mem)
	}
	name, err := kernels.EntryPoint(dtype)
	if err != nil {
		return 0, newError(ErrKernelResolutionFailed, "", err)
	}
	kernel, err := s.driver.CreateKernel(s.program, name)
	if err != nil {
		return 0, newError(ErrKernelResolutionFailed, "clCreateKernel", errors.WithMessagef(err, "kernel %q", name))
	}
	defer func() {
		if errRelease := s.driver.ReleaseKernel(kernel); errRelease != nil && err == nil {
			err = newError(ErrTeardownFailed, "clReleaseKernel", errRelease)
		}
	}()

	for ii, dim := range []int{n, m, k} {
		if err = s.driver.SetKernelArgInt32(kernel, ii, int32(dim)); err != nil {
			return 0, newError(ErrDispatchFailed, "clSetKernelArg", err)
		}
	}
	for ii, mem := range mems {
		if err = s.driver.SetKernelArgBuffer(kernel, 3+ii, mem); err != nil {
			return 0, newError(ErrDispatchFailed, "clSetKernelArg", err)
		}
	}

	global := []int{n, k}
	local := []int{kernels.LocalSize, kernels.LocalSize}
	event, err := s.driver.EnqueueNDRangeKernel(s.queue, kernel, global, local)
	if err != nil {
		return 0, newError(ErrDispatchFailed, "clEnqueueNDRangeKernel", errors.WithMessagef(err, "%s over %v with work-groups of %v", name, global, local))
	}
	defer func() {
		if errRelease := s.driver.ReleaseEvent(event); errRelease != nil && err == nil {
			err = newError(ErrTeardownFailed, "clReleaseEvent", errRelease)
		}
	}()

	if err = retrieve(); err != nil {
		return 0, err
	}
	if err = s.driver.Finish(s.queue); err != nil {
		return 0, newError(ErrDispatchFailed, "clFinish", err)
	}
	start, err := s.driver.EventProfilingInfo(event, cl.ProfilingCommandStart)
	if err != nil {
		return 0, newError(ErrDispatchFailed, "clGetEventProfilingInfo", err)
	}
	end, err := s.driver.EventProfilingInfo(event, cl.ProfilingCommandEnd)
	if err != nil {
		return 0, newError(ErrDispatchFailed, "clGetEventProfilingInfo", err)
	}
	if end < start {
		return 0, newError(ErrDispatchFailed, "clGetEventProfilingInfo", errors.Errorf("kernel ended (%d) before it started (%d)", end, start))
	}
	elapsed = time.Duration(end - start)
	klog.V(2).Infof("goclmm: %s [%dx%d] x [%dx%d] took %s on device", name, n, m, m, k, elapsed)
	return elapsed, nil
}
