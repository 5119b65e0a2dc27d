package host

import (
	"runtime"

	"github.com/gomlx/goclmm/cl"
	"github.com/gomlx/goclmm/dtypes"
	"github.com/gomlx/goclmm/kernels"
	"github.com/x448/float16"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// kernelArgs are the arguments of a multiplication kernel: dimensions and the storage of the operands.
type kernelArgs struct {
	n, m, k             int
	left, right, output []byte
}

// kernelFunc computes the output rows [i0, i1) and columns [j0, j1) of one work-group.
type kernelFunc func(args *kernelArgs, i0, i1, j0, j1 int)

// mulKernels maps each dtype to the Go implementation of its multiplication kernel.
var mulKernels = map[dtypes.DType]kernelFunc{
	dtypes.Int8:    mulKernel[int8],
	dtypes.Int16:   mulKernel[int16],
	dtypes.Int32:   mulKernel[int32],
	dtypes.Int64:   mulKernel[int64],
	dtypes.Uint8:   mulKernel[uint8],
	dtypes.Uint16:  mulKernel[uint16],
	dtypes.Uint32:  mulKernel[uint32],
	dtypes.Uint64:  mulKernel[uint64],
	dtypes.Float16: mulKernelFloat16,
	dtypes.Float32: mulKernel[float32],
	dtypes.Float64: mulKernel[float64],
}

// mulKernel accumulates in T: integer overflow wraps around, as it does on the device.
func mulKernel[T dtypes.Number](args *kernelArgs, i0, i1, j0, j1 int) {
	left, right, output := view[T](args.left), view[T](args.right), view[T](args.output)
	for i := i0; i < min(i1, args.n); i++ {
		for j := j0; j < min(j1, args.k); j++ {
			var sum T
			for k := range args.m {
				sum += left[i*args.m+k] * right[k*args.k+j]
			}
			output[i*args.k+j] = sum
		}
	}
}

// mulKernelFloat16 accumulates in float32, and rounds only the final value to half precision.
func mulKernelFloat16(args *kernelArgs, i0, i1, j0, j1 int) {
	left, right := view[float16.Float16](args.left), view[float16.Float16](args.right)
	output := view[float16.Float16](args.output)
	for i := i0; i < min(i1, args.n); i++ {
		for j := j0; j < min(j1, args.k); j++ {
			var sum float32
			for k := range args.m {
				sum += left[i*args.m+k].Float32() * right[k*args.k+j].Float32()
			}
			output[i*args.k+j] = float16.Fromfloat32(sum)
		}
	}
}

type kernel struct {
	program cl.Program
	name    string
	dtype   dtypes.DType
	fn      kernelFunc
	ints    [3]int32
	mems    [3]cl.Mem
	set     [kernels.NumArgs]bool
}

// CreateKernel implements cl.Driver.
func (d *Driver) CreateKernel(handle cl.Program, name string) (cl.Kernel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, found := d.programs[handle]
	if !found {
		return 0, cl.InvalidProgram.Err()
	}
	if !p.built {
		return 0, cl.InvalidProgramExecutable.Err()
	}
	fn, found := p.kernels[name]
	if !found {
		return 0, cl.InvalidKernelName.Err()
	}
	dtype, _ := kernels.DTypeForEntryPoint(name)
	kh := cl.Kernel(d.newHandle())
	d.kernels[kh] = &kernel{program: handle, name: name, dtype: dtype, fn: fn}
	return kh, nil
}

// SetKernelArgInt32 implements cl.Driver. Arguments 0 to 2 are the int dimensions N, M and K.
func (d *Driver) SetKernelArgInt32(handle cl.Kernel, index int, value int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	kn, found := d.kernels[handle]
	if !found {
		return cl.InvalidKernel.Err()
	}
	if index < 0 || index >= kernels.NumArgs {
		return cl.InvalidArgIndex.Err()
	}
	if index >= len(kn.ints) {
		return cl.InvalidArgSize.Err()
	}
	kn.ints[index] = value
	kn.set[index] = true
	return nil
}

// SetKernelArgBuffer implements cl.Driver. Arguments 3 to 5 are the left, right and output buffers.
func (d *Driver) SetKernelArgBuffer(handle cl.Kernel, index int, memHandle cl.Mem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	kn, found := d.kernels[handle]
	if !found {
		return cl.InvalidKernel.Err()
	}
	if index < 0 || index >= kernels.NumArgs {
		return cl.InvalidArgIndex.Err()
	}
	if index < len(kn.ints) {
		return cl.InvalidArgSize.Err()
	}
	if _, found := d.mems[memHandle]; !found {
		return cl.InvalidMemObject.Err()
	}
	kn.mems[index-len(kn.ints)] = memHandle
	kn.set[index] = true
	return nil
}

type event struct {
	queue                         cl.Queue
	profiling                     bool
	queued, submit, start, finish uint64
}

// EnqueueNDRangeKernel implements cl.Driver. The kernel runs to completion before it returns, with its
// work-groups executed in parallel.
func (d *Driver) EnqueueNDRangeKernel(q cl.Queue, handle cl.Kernel, global, local []int) (cl.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	qu, found := d.queues[q]
	if !found {
		return 0, cl.InvalidCommandQueue.Err()
	}
	kn, found := d.kernels[handle]
	if !found {
		return 0, cl.InvalidKernel.Err()
	}
	if d.programs[kn.program] == nil || d.programs[kn.program].ctx != qu.ctx {
		return 0, cl.InvalidContext.Err()
	}
	if err := d.checkRange(global, local); err != nil {
		return 0, err
	}
	for _, set := range kn.set {
		if !set {
			return 0, cl.InvalidKernelArgs.Err()
		}
	}
	args := &kernelArgs{n: int(kn.ints[0]), m: int(kn.ints[1]), k: int(kn.ints[2])}
	operands := []*[]byte{&args.left, &args.right, &args.output}
	sizes := [][2]int{{args.n, args.m}, {args.m, args.k}, {args.n, args.k}}
	for ii, memHandle := range kn.mems {
		m, found := d.mems[memHandle]
		if !found {
			return 0, cl.InvalidMemObject.Err()
		}
		if m.ctx != qu.ctx {
			return 0, cl.InvalidContext.Err()
		}
		if m.size < kn.dtype.SizeForDimensions(sizes[ii][0], sizes[ii][1]) {
			// Out of bounds access on a device.
			return 0, cl.OutOfResources.Err()
		}
		*operands[ii] = m.data
	}

	ev := &event{queue: q, profiling: qu.profiling}
	ev.queued = d.cfg.clock()
	ev.submit = ev.queued
	ev.start = d.cfg.clock()
	if err := run(kn.fn, args, global, local); err != nil {
		return 0, cl.OutOfResources.Err()
	}
	ev.finish = d.cfg.clock()
	d.dispatches++
	eh := cl.Event(d.newHandle())
	d.events[eh] = ev
	klog.V(3).Infof("host: %s over %v/%v took %dns", kn.name, global, local, ev.finish-ev.start)
	return eh, nil
}

// checkRange validates an n-dimensional range like OpenCL 1.x does.
func (d *Driver) checkRange(global, local []int) error {
	if len(global) < 1 || len(global) > 2 || (local != nil && len(local) != len(global)) {
		return cl.InvalidWorkDimension.Err()
	}
	items := 1
	for ii, size := range global {
		if size <= 0 {
			return cl.InvalidGlobalWorkSize.Err()
		}
		if local == nil {
			continue
		}
		if local[ii] <= 0 || size%local[ii] != 0 {
			return cl.InvalidWorkGroupSize.Err()
		}
		items *= local[ii]
	}
	if items > d.cfg.maxWorkGroupSize {
		return cl.InvalidWorkGroupSize.Err()
	}
	return nil
}

// run executes fn over the range, one goroutine per row of work-groups.
func run(fn kernelFunc, args *kernelArgs, global, local []int) error {
	globalSize, localSize := [2]int{1, 1}, [2]int{1, 1}
	copy(globalSize[:], global)
	copy(localSize[:], local)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i0 := 0; i0 < globalSize[0]; i0 += localSize[0] {
		g.Go(func() error {
			for j0 := 0; j0 < globalSize[1]; j0 += localSize[1] {
				fn(args, i0, i0+localSize[0], j0, j0+localSize[1])
			}
			return nil
		})
	}
	return g.Wait()
}

// EventProfilingInfo implements cl.Driver.
func (d *Driver) EventProfilingInfo(handle cl.Event, info cl.ProfilingInfo) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ev, found := d.events[handle]
	if !found {
		return 0, cl.InvalidEvent.Err()
	}
	if !ev.profiling {
		return 0, cl.ProfilingInfoNotAvailable.Err()
	}
	switch info {
	case cl.ProfilingCommandQueued:
		return ev.queued, nil
	case cl.ProfilingCommandSubmit:
		return ev.submit, nil
	case cl.ProfilingCommandStart:
		return ev.start, nil
	case cl.ProfilingCommandEnd:
		return ev.finish, nil
	}
	return 0, cl.InvalidValue.Err()
}
