package goclmm

import (
	"fmt"
	"strings"

	"github.com/gomlx/goclmm/cl"
	"github.com/pkg/errors"
)

// Kinds of errors. Every error returned by the package matches (with errors.Is) exactly one of them.
var (
	ErrPlatformUnavailable    = errors.New("platform unavailable")
	ErrDeviceUnavailable      = errors.New("device unavailable")
	ErrContextCreationFailed  = errors.New("context creation failed")
	ErrQueueCreationFailed    = errors.New("queue creation failed")
	ErrProgramBuildFailed     = errors.New("program build failed")
	ErrBufferAllocationFailed = errors.New("buffer allocation failed")
	ErrKernelResolutionFailed = errors.New("kernel resolution failed")
	ErrDispatchFailed         = errors.New("dispatch failed")
	ErrTeardownFailed         = errors.New("teardown failed")

	// ErrShapeMismatch is returned when host data doesn't have the number of elements of the matrix.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrSessionClosed is returned when a matrix is used for device work after its session was torn down.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionMismatch is returned when multiplying matrices created by different sessions.
	ErrSessionMismatch = errors.New("session mismatch")
)

// Error describes a failure of the device API or a misuse of a session or matrix.
//
// Use errors.Is with the Err* kinds to test for a kind of failure, and errors.As to access the details.
// The driver error (Err) usually wraps a cl.Status, which is also matched by errors.Is.
type Error struct {
	// Kind is one of the Err* variables.
	Kind error

	// Call is the name of the device API call that failed, e.g. "clBuildProgram". It may be empty.
	Call string

	// Err is the underlying error, if any.
	Err error

	// BuildLog is the device compiler output, for ErrProgramBuildFailed errors.
	BuildLog string

	// Suppressed holds the failures that happened after the first one during a best-effort teardown.
	Suppressed []error
}

func newError(kind error, call string, err error) error {
	return errors.WithStack(&Error{Kind: kind, Call: call, Err: err})
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("goclmm: ")
	sb.WriteString(e.Kind.Error())
	if e.Call != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Call)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if len(e.Suppressed) > 0 {
		_, _ = fmt.Fprintf(&sb, " (and %d more failures)", len(e.Suppressed))
	}
	if e.BuildLog != "" {
		sb.WriteString("\nbuild log:\n")
		sb.WriteString(e.BuildLog)
	}
	return sb.String()
}

// Unwrap returns the kind and the underlying error.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Status returns the OpenCL status code of the failure, if the driver reported one.
func (e *Error) Status() (cl.Status, bool) {
	return cl.StatusOf(e.Err)
}
