package host

import (
	"testing"
	"unsafe"

	"github.com/gomlx/goclmm/cl"
	"github.com/gomlx/goclmm/kernels"
	"github.com/stretchr/testify/require"
)

// setup creates a context, a profiling queue and a built program on a new host device.
func setup(t *testing.T, options ...Option) (*Driver, cl.Device, cl.Context, cl.Queue, cl.Program) {
	d := New(options...)
	platforms, err := d.PlatformIDs()
	require.NoError(t, err)
	devices, err := d.DeviceIDs(platforms[0], cl.DeviceTypeAll)
	require.NoError(t, err)
	device := devices[0]
	ctx, err := d.CreateContext(device)
	require.NoError(t, err)
	q, err := d.CreateCommandQueue(ctx, device, cl.QueueProfilingEnable)
	require.NoError(t, err)
	program, err := d.CreateProgramWithSource(ctx, kernels.Source)
	require.NoError(t, err)
	require.NoError(t, d.BuildProgram(program, device, ""))
	return d, device, ctx, q, program
}

func bytesOf[T any](values []T) []byte {
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), len(values)*int(unsafe.Sizeof(zero)))
}

func newBuffer[T any](t *testing.T, d *Driver, ctx cl.Context, q cl.Queue, values []T) cl.Mem {
	data := bytesOf(values)
	mem, err := d.CreateBuffer(ctx, cl.MemReadWrite, len(data))
	require.NoError(t, err)
	require.NoError(t, d.EnqueueWriteBuffer(q, mem, data))
	return mem
}

func setArgs(t *testing.T, d *Driver, kernel cl.Kernel, n, m, k int32, left, right, output cl.Mem) {
	for ii, v := range []int32{n, m, k} {
		require.NoError(t, d.SetKernelArgInt32(kernel, ii, v))
	}
	for ii, mem := range []cl.Mem{left, right, output} {
		require.NoError(t, d.SetKernelArgBuffer(kernel, 3+ii, mem))
	}
}

func TestMultiply(t *testing.T) {
	var ticks uint64
	d, _, ctx, q, program := setup(t, WithClock(func() uint64 {
		ticks += 100
		return ticks
	}))

	// [4x4] x [4x4]: left is 1..16 row-major, right is the identity times 2.
	left := make([]int32, 16)
	right := make([]int32, 16)
	for ii := range left {
		left[ii] = int32(ii + 1)
	}
	for ii := 0; ii < 4; ii++ {
		right[ii*4+ii] = 2
	}
	leftMem := newBuffer(t, d, ctx, q, left)
	rightMem := newBuffer(t, d, ctx, q, right)
	outMem := newBuffer(t, d, ctx, q, make([]int32, 16))

	kernel, err := d.CreateKernel(program, "mul_int32")
	require.NoError(t, err)
	setArgs(t, d, kernel, 4, 4, 4, leftMem, rightMem, outMem)
	event, err := d.EnqueueNDRangeKernel(q, kernel, []int{4, 4}, []int{4, 4})
	require.NoError(t, err)
	require.NoError(t, d.Finish(q))

	output := make([]int32, 16)
	require.NoError(t, d.EnqueueReadBuffer(q, outMem, bytesOf(output)))
	for ii := range output {
		require.Equal(t, 2*left[ii], output[ii], "element %d", ii)
	}
	require.Equal(t, 1, d.Dispatches())

	start, err := d.EventProfilingInfo(event, cl.ProfilingCommandStart)
	require.NoError(t, err)
	end, err := d.EventProfilingInfo(event, cl.ProfilingCommandEnd)
	require.NoError(t, err)
	require.Equal(t, uint64(100), end-start)

	require.NoError(t, d.ReleaseEvent(event))
	require.NoError(t, d.ReleaseKernel(kernel))
	require.Equal(t, 0, d.Live(KindEvent))
	require.Equal(t, 0, d.Live(KindKernel))
}

func TestMultiplyWrapsAround(t *testing.T) {
	d, _, ctx, q, program := setup(t)
	left := []uint8{200, 100, 0, 0}
	right := []uint8{2, 3, 0, 0}
	leftMem := newBuffer(t, d, ctx, q, left)      // [1x4]
	rightMem := newBuffer(t, d, ctx, q, right)    // [4x1]
	outMem := newBuffer(t, d, ctx, q, []uint8{0}) // [1x1]
	kernel, err := d.CreateKernel(program, "mul_uint8")
	require.NoError(t, err)
	setArgs(t, d, kernel, 1, 4, 1, leftMem, rightMem, outMem)
	_, err = d.EnqueueNDRangeKernel(q, kernel, []int{1, 1}, []int{1, 1})
	require.NoError(t, err)
	output := []uint8{0}
	require.NoError(t, d.EnqueueReadBuffer(q, outMem, bytesOf(output)))
	var dot uint8
	for ii := range left {
		dot += left[ii] * right[ii]
	}
	require.Equal(t, dot, output[0])
	require.Equal(t, uint8((200*2+100*3)%256), output[0])
}

func TestDispatchErrors(t *testing.T) {
	d, _, ctx, q, program := setup(t, WithMaxWorkGroupSize(8))
	mem := newBuffer(t, d, ctx, q, make([]float32, 36))
	kernel, err := d.CreateKernel(program, "mul_float32")
	require.NoError(t, err)

	_, err = d.EnqueueNDRangeKernel(q, kernel, []int{4, 4}, []int{2, 2})
	require.ErrorIs(t, err, cl.InvalidKernelArgs)

	setArgs(t, d, kernel, 6, 6, 6, mem, mem, mem)
	_, err = d.EnqueueNDRangeKernel(q, kernel, []int{6, 6}, []int{4, 4})
	require.ErrorIs(t, err, cl.InvalidWorkGroupSize, "6 is not divisible by 4")
	_, err = d.EnqueueNDRangeKernel(q, kernel, []int{6, 6}, []int{3, 3})
	require.ErrorIs(t, err, cl.InvalidWorkGroupSize, "9 work-items is more than the maximum of 8")
	_, err = d.EnqueueNDRangeKernel(q, kernel, []int{6, 6, 1}, []int{2, 2, 1})
	require.ErrorIs(t, err, cl.InvalidWorkDimension)
	_, err = d.EnqueueNDRangeKernel(q, kernel, []int{0, 6}, []int{2, 2})
	require.ErrorIs(t, err, cl.InvalidGlobalWorkSize)

	setArgs(t, d, kernel, 8, 8, 8, mem, mem, mem)
	_, err = d.EnqueueNDRangeKernel(q, kernel, []int{8, 8}, []int{2, 2})
	require.ErrorIs(t, err, cl.OutOfResources, "buffers too small for 8x8 matrices")

	require.ErrorIs(t, d.SetKernelArgInt32(kernel, 3, 1), cl.InvalidArgSize)
	require.ErrorIs(t, d.SetKernelArgBuffer(kernel, 0, mem), cl.InvalidArgSize)
	require.ErrorIs(t, d.SetKernelArgBuffer(kernel, 6, mem), cl.InvalidArgIndex)
	require.ErrorIs(t, d.SetKernelArgBuffer(kernel, 4, cl.Mem(9999)), cl.InvalidMemObject)
	require.Equal(t, 0, d.Dispatches())
}

func TestProfilingDisabled(t *testing.T) {
	d, device, ctx, _, program := setup(t)
	q, err := d.CreateCommandQueue(ctx, device, 0)
	require.NoError(t, err)
	mem := newBuffer(t, d, ctx, q, make([]float64, 16))
	kernel, err := d.CreateKernel(program, "mul_float64")
	require.NoError(t, err)
	setArgs(t, d, kernel, 4, 4, 4, mem, mem, mem)
	event, err := d.EnqueueNDRangeKernel(q, kernel, []int{4, 4}, []int{4, 4})
	require.NoError(t, err)
	_, err = d.EventProfilingInfo(event, cl.ProfilingCommandStart)
	require.ErrorIs(t, err, cl.ProfilingInfoNotAvailable)

	_, err = d.CreateCommandQueue(ctx, device, cl.QueueOutOfOrderExecModeEnable)
	require.ErrorIs(t, err, cl.InvalidQueueProperties)
}

func TestBuild(t *testing.T) {
	// Without cl_khr_fp64 the float64 kernel is not compiled.
	d, _, _, _, program := setup(t, WithExtensions("cl_khr_fp16"))
	_, err := d.CreateKernel(program, "mul_float64")
	require.ErrorIs(t, err, cl.InvalidKernelName)
	_, err = d.CreateKernel(program, "mul_float16")
	require.NoError(t, err)

	platforms, _ := d.PlatformIDs()
	devices, _ := d.DeviceIDs(platforms[0], cl.DeviceTypeAll)
	ctx, err := d.CreateContext(devices[0])
	require.NoError(t, err)

	for _, source := range []string{
		"__kernel void mul_int32(int N) {",
		"__kernel void mul_complex64(int N) { }",
		"#ifdef cl_khr_fp64\n__kernel void mul_float64(int N) { }\n",
		"#endif\n",
	} {
		program, err := d.CreateProgramWithSource(ctx, source)
		require.NoError(t, err)
		err = d.BuildProgram(program, devices[0], "")
		require.ErrorIs(t, err, cl.BuildProgramFailure, "source %q", source)
		buildLog, err := d.ProgramBuildLog(program, devices[0])
		require.NoError(t, err)
		require.Contains(t, buildLog, "error:")
		_, err = d.CreateKernel(program, "mul_int32")
		require.ErrorIs(t, err, cl.InvalidProgramExecutable)
	}

	_, err = d.CreateProgramWithSource(ctx, "  ")
	require.ErrorIs(t, err, cl.InvalidValue)
}

func TestPreprocess(t *testing.T) {
	source := "a\n#ifdef X\nb\n#ifndef Y\nc\n#else\nd\n#endif\n#else\ne\n#endif\nf"
	active, errMsg := preprocess(source, []string{"X", "Y"})
	require.Empty(t, errMsg)
	require.Equal(t, "a\nb\nd\nf\n", active)
	active, errMsg = preprocess(source, nil)
	require.Empty(t, errMsg)
	require.Equal(t, "a\ne\nf\n", active)
}

func TestBuildFailure(t *testing.T) {
	d := New(WithBuildFailure("error: out of registers"))
	platforms, _ := d.PlatformIDs()
	devices, _ := d.DeviceIDs(platforms[0], cl.DeviceTypeGPU)
	ctx, err := d.CreateContext(devices[0])
	require.NoError(t, err)
	program, err := d.CreateProgramWithSource(ctx, kernels.Source)
	require.NoError(t, err)
	require.ErrorIs(t, d.BuildProgram(program, devices[0], ""), cl.BuildProgramFailure)
	buildLog, err := d.ProgramBuildLog(program, devices[0])
	require.NoError(t, err)
	require.Equal(t, "error: out of registers", buildLog)
}

func TestDiscovery(t *testing.T) {
	_, err := New(WithoutPlatforms()).PlatformIDs()
	require.ErrorIs(t, err, cl.PlatformNotFoundKHR)

	d := New(WithoutDevices())
	platforms, err := d.PlatformIDs()
	require.NoError(t, err)
	_, err = d.DeviceIDs(platforms[0], cl.DeviceTypeAll)
	require.ErrorIs(t, err, cl.DeviceNotFound)

	d = New(WithDeviceType(cl.DeviceTypeCPU))
	platforms, _ = d.PlatformIDs()
	_, err = d.DeviceIDs(platforms[0], cl.DeviceTypeGPU)
	require.ErrorIs(t, err, cl.DeviceNotFound)
	devices, err := d.DeviceIDs(platforms[0], cl.DeviceTypeCPU)
	require.NoError(t, err)
	info, err := d.DeviceInfo(devices[0])
	require.NoError(t, err)
	require.Equal(t, cl.DeviceTypeCPU, info.Type)
	require.True(t, info.HasExtension("cl_khr_fp64"))
	platformInfo, err := d.PlatformInfo(platforms[0])
	require.NoError(t, err)
	require.Equal(t, "FULL_PROFILE", platformInfo.Profile)

	_, err = New(WithContextFailure()).CreateContext(devices[0])
	require.ErrorIs(t, err, cl.OutOfHostMemory)
}

func TestMemoryLimits(t *testing.T) {
	d, _, ctx, _, _ := setup(t, WithMemorySize(1024), WithMaxAllocations(3))
	a, err := d.CreateBuffer(ctx, cl.MemReadWrite, 1000)
	require.NoError(t, err)
	_, err = d.CreateBuffer(ctx, cl.MemReadWrite, 100)
	require.ErrorIs(t, err, cl.MemObjectAllocationFailure)
	require.NoError(t, d.ReleaseMemObject(a))
	require.Equal(t, 0, d.LiveBytes())

	_, err = d.CreateBuffer(ctx, cl.MemReadWrite, 100)
	require.NoError(t, err)
	_, err = d.CreateBuffer(ctx, cl.MemReadWrite, 100)
	require.NoError(t, err)
	_, err = d.CreateBuffer(ctx, cl.MemReadWrite, 100)
	require.ErrorIs(t, err, cl.MemObjectAllocationFailure, "only 3 allocations allowed")
	require.Equal(t, 200, d.LiveBytes())

	_, err = d.CreateBuffer(ctx, cl.MemReadWrite, 0)
	require.ErrorIs(t, err, cl.InvalidBufferSize)
}

func TestReleases(t *testing.T) {
	d, device, ctx, q, program := setup(t, WithReleaseFailure(KindQueue))
	mem, err := d.CreateBuffer(ctx, cl.MemReadWrite, 64)
	require.NoError(t, err)

	require.NoError(t, d.ReleaseMemObject(mem))
	require.ErrorIs(t, d.ReleaseMemObject(mem), cl.InvalidMemObject, "double release")
	require.NoError(t, d.ReleaseProgram(program))
	require.ErrorIs(t, d.ReleaseCommandQueue(q), cl.OutOfResources)
	require.Equal(t, 1, d.Live(KindQueue))
	require.NoError(t, d.ReleaseContext(ctx))
	require.NoError(t, d.ReleaseDevice(device))

	require.Equal(t, []Release{
		{KindMem, uintptr(mem)},
		{KindProgram, uintptr(program)},
		{KindContext, uintptr(ctx)},
		{KindDevice, uintptr(device)},
	}, d.Releases())
	require.Equal(t, "Mem#7", Release{KindMem, 7}.String())
}

func TestRegistered(t *testing.T) {
	driver, err := cl.Get(DriverName)
	require.NoError(t, err)
	require.Equal(t, DriverName, driver.Name())
	require.IsType(t, &Driver{}, driver)
}
