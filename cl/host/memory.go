package host

import (
	"unsafe"

	"github.com/gomlx/goclmm/cl"
	"k8s.io/klog/v2"
)

type mem struct {
	ctx     cl.Context
	flags   cl.MemFlags
	size    int
	backing []uint64 // Keeps the storage 8-bytes aligned, so it can be viewed as a slice of any element type.
	data    []byte
}

// newStorage returns a zero-initialized, 8-bytes aligned, byte slice of the given size.
func newStorage(size int) (backing []uint64, data []byte) {
	backing = make([]uint64, (size+7)/8)
	data = unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(backing))), size)
	return
}

// view returns data as a slice of T, sharing the same storage. data must be aligned for T.
func view[T any](data []byte) []T {
	var zero T
	n := len(data) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), n)
}

// CreateBuffer implements cl.Driver. The buffer contents are zero-initialized.
func (d *Driver) CreateBuffer(ctx cl.Context, flags cl.MemFlags, size int) (cl.Mem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, found := d.contexts[ctx]; !found {
		return 0, cl.InvalidContext.Err()
	}
	if size <= 0 {
		return 0, cl.InvalidBufferSize.Err()
	}
	if d.cfg.maxAllocations >= 0 && d.allocations >= d.cfg.maxAllocations {
		return 0, cl.MemObjectAllocationFailure.Err()
	}
	if d.liveBytes+size > d.cfg.memorySize {
		klog.V(2).Infof("host: allocation of %d bytes rejected, %d of %d bytes in use", size, d.liveBytes, d.cfg.memorySize)
		return 0, cl.MemObjectAllocationFailure.Err()
	}
	handle := cl.Mem(d.newHandle())
	m := &mem{ctx: ctx, flags: flags, size: size}
	m.backing, m.data = newStorage(size)
	d.mems[handle] = m
	d.allocations++
	d.liveBytes += size
	return handle, nil
}

// transferTargets validates a blocking transfer between the host and a buffer.
func (d *Driver) transferTargets(q cl.Queue, handle cl.Mem, size int) (*mem, error) {
	qu, found := d.queues[q]
	if !found {
		return nil, cl.InvalidCommandQueue.Err()
	}
	m, found := d.mems[handle]
	if !found {
		return nil, cl.InvalidMemObject.Err()
	}
	if m.ctx != qu.ctx {
		return nil, cl.InvalidContext.Err()
	}
	if size > m.size {
		return nil, cl.InvalidValue.Err()
	}
	return m, nil
}

// EnqueueWriteBuffer implements cl.Driver: it copies data to the start of the buffer.
func (d *Driver) EnqueueWriteBuffer(q cl.Queue, handle cl.Mem, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.transferTargets(q, handle, len(data))
	if err != nil {
		return err
	}
	copy(m.data, data)
	return nil
}

// EnqueueReadBuffer implements cl.Driver: it copies the start of the buffer to data.
func (d *Driver) EnqueueReadBuffer(q cl.Queue, handle cl.Mem, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.transferTargets(q, handle, len(data))
	if err != nil {
		return err
	}
	copy(data, m.data)
	return nil
}

// ReleaseMemObject implements cl.Driver.
func (d *Driver) ReleaseMemObject(handle cl.Mem) error {
	d.mu.Lock()
	var size int
	if m, found := d.mems[handle]; found {
		size = m.size
	}
	d.mu.Unlock()
	if err := release(d, d.mems, KindMem, handle, cl.InvalidMemObject); err != nil {
		return err
	}
	d.mu.Lock()
	d.liveBytes -= size
	d.mu.Unlock()
	return nil
}
