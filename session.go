package goclmm

import (
	"fmt"

	"github.com/gomlx/goclmm/cl"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Session owns one device and every resource created on it: context, command queue, the compiled kernels
// program and all the buffers allocated by its matrices.
//
// Sessions are created by Scope (or Run), and torn down when the scope body returns. After that, matrices
// created on the session can no longer be used for device work (they fail with ErrSessionClosed), but their
// host data remains readable.
//
// A Session is not safe for concurrent use.
type Session struct {
	driver   cl.Driver
	platform cl.Platform
	device   cl.Device
	ctx      cl.Context
	queue    cl.Queue
	program  cl.Program

	// buffers is the table of all buffers allocated by the session. Matrices hold an index into it.
	buffers []cl.Mem
	closed  bool

	platformInfo cl.PlatformInfo
	deviceInfo   cl.DeviceInfo
}

// newSession selects the device and creates the context, the profiling queue and the program.
// If any step fails, the resources already created are released.
func newSession(cfg *config) (_ *Session, err error) {
	driver := cfg.driver
	if driver == nil {
		driver, err = cl.Get(cfg.driverName)
		if err != nil {
			return nil, newError(ErrPlatformUnavailable, "", err)
		}
	}
	platforms, err := driver.PlatformIDs()
	if err != nil {
		return nil, newError(ErrPlatformUnavailable, "clGetPlatformIDs", err)
	}
	if len(platforms) == 0 {
		return nil, newError(ErrPlatformUnavailable, "clGetPlatformIDs", nil)
	}
	devices, err := driver.DeviceIDs(platforms[0], cfg.deviceType)
	if err != nil {
		return nil, newError(ErrDeviceUnavailable, "clGetDeviceIDs", err)
	}
	if len(devices) == 0 {
		return nil, newError(ErrDeviceUnavailable, "clGetDeviceIDs", nil)
	}

	session := &Session{driver: driver, platform: platforms[0], device: devices[0]}
	defer func() {
		if err == nil {
			return
		}
		if errTeardown := session.teardown(); errTeardown != nil {
			klog.Errorf("goclmm: failed to release resources of partially created session: %+v", errTeardown)
		}
	}()
	if session.platformInfo, err = driver.PlatformInfo(session.platform); err != nil {
		klog.Errorf("goclmm: failed to query platform info: %v", err)
	}
	if session.deviceInfo, err = driver.DeviceInfo(session.device); err != nil {
		klog.Errorf("goclmm: failed to query device info: %v", err)
	}
	err = nil

	if session.ctx, err = driver.CreateContext(session.device); err != nil {
		return nil, newError(ErrContextCreationFailed, "clCreateContext", err)
	}
	if session.queue, err = driver.CreateCommandQueue(session.ctx, session.device, cl.QueueProfilingEnable); err != nil {
		return nil, newError(ErrQueueCreationFailed, "clCreateCommandQueue", err)
	}
	if session.program, err = driver.CreateProgramWithSource(session.ctx, cfg.kernelSource); err != nil {
		return nil, newError(ErrProgramBuildFailed, "clCreateProgramWithSource", err)
	}
	if err = driver.BuildProgram(session.program, session.device, ""); err != nil {
		buildErr := &Error{Kind: ErrProgramBuildFailed, Call: "clBuildProgram", Err: err}
		buildLog, errLog := driver.ProgramBuildLog(session.program, session.device)
		if errLog != nil {
			klog.Errorf("goclmm: failed to retrieve the program build log: %v", errLog)
		}
		buildErr.BuildLog = buildLog
		return nil, errors.WithStack(buildErr)
	}
	klog.V(1).Infof("goclmm: created %s", session)
	return session, nil
}

// Device returns the description of the device used by the session.
func (s *Session) Device() cl.DeviceInfo {
	return s.deviceInfo
}

// Platform returns the description of the platform of the device.
func (s *Session) Platform() cl.PlatformInfo {
	return s.platformInfo
}

// DriverName returns the name of the driver used by the session.
func (s *Session) DriverName() string {
	return s.driver.Name()
}

// NumBuffers returns the number of device buffers allocated by the session so far.
func (s *Session) NumBuffers() int {
	return len(s.buffers)
}

// IsClosed returns whether the session has been torn down.
func (s *Session) IsClosed() bool {
	return s.closed
}

// String implements fmt.Stringer.
func (s *Session) String() string {
	state := "open"
	if s.closed {
		state = "closed"
	}
	return fmt.Sprintf("Session(driver=%s, device=%q, buffers=%d, %s)", s.driver.Name(), s.deviceInfo.Name, len(s.buffers), state)
}

// allocate creates a read/write device buffer and returns its index in the session buffer table.
func (s *Session) allocate(byteSize int) (int, error) {
	if s.closed {
		return 0, newError(ErrSessionClosed, "", nil)
	}
	mem, err := s.driver.CreateBuffer(s.ctx, cl.MemReadWrite, byteSize)
	if err != nil {
		return 0, newError(ErrBufferAllocationFailed, "clCreateBuffer", err)
	}
	s.buffers = append(s.buffers, mem)
	klog.V(2).Infof("goclmm: allocated buffer #%d with %d bytes", len(s.buffers)-1, byteSize)
	return len(s.buffers) - 1, nil
}

// buffer returns the device buffer at the given index of the buffer table.
func (s *Session) buffer(index int) (cl.Mem, error) {
	if s.closed {
		return 0, newError(ErrSessionClosed, "", nil)
	}
	return s.buffers[index], nil
}

// teardown releases, in order, all buffers, the program, the queue, the context and the device.
//
// It is best-effort: it attempts every release even after a failure. The first failure is returned as an
// ErrTeardownFailed error, with the following ones logged and attached as Error.Suppressed.
// It is idempotent.
func (s *Session) teardown() error {
	if s.closed {
		return nil
	}
	var first *Error
	record := func(call string, err error) {
		if err == nil {
			return
		}
		if first == nil {
			first = &Error{Kind: ErrTeardownFailed, Call: call, Err: err}
			return
		}
		klog.Errorf("goclmm: %s failed during teardown (after a previous failure): %+v", call, err)
		first.Suppressed = append(first.Suppressed, errors.WithMessage(err, call))
	}
	for _, mem := range s.buffers {
		record("clReleaseMemObject", s.driver.ReleaseMemObject(mem))
	}
	if s.program != 0 {
		record("clReleaseProgram", s.driver.ReleaseProgram(s.program))
	}
	if s.queue != 0 {
		record("clReleaseCommandQueue", s.driver.ReleaseCommandQueue(s.queue))
	}
	if s.ctx != 0 {
		record("clReleaseContext", s.driver.ReleaseContext(s.ctx))
	}
	if s.device != 0 {
		record("clReleaseDevice", s.driver.ReleaseDevice(s.device))
	}
	numBuffers := len(s.buffers)
	s.buffers = nil
	s.program, s.queue, s.ctx, s.device = 0, 0, 0, 0
	s.closed = true
	if first != nil {
		return errors.WithStack(first)
	}
	klog.V(1).Infof("goclmm: session torn down, %d buffers released", numBuffers)
	return nil
}
