package goclmm_test

// Common initialization and testing tools for all test files.

import (
	"flag"
	"testing"

	"github.com/gomlx/goclmm"
	"github.com/gomlx/goclmm/cl/host"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

var flagDriver = flag.String("driver", host.DriverName, "cl driver to run the tests on: \"host\" or \"opencl\"")

func init() {
	klog.InitFlags(nil)
}

// driverOption returns the option selecting the driver given by the -driver flag.
func driverOption() goclmm.Option {
	return goclmm.WithDriverName(*flagDriver)
}

type errTester[T any] struct {
	value T
	err   error
}

// capture is a shortcut to test that there is no error and return the value.
func capture[T any](value T, err error) errTester[T] {
	return errTester[T]{value, err}
}

func (e errTester[T]) Test(t *testing.T) T {
	require.NoError(t, e.err)
	return e.value
}

// requireKind checks that err is a *goclmm.Error of the given kind, and returns it.
func requireKind(t *testing.T, err error, kind error) *goclmm.Error {
	require.Error(t, err)
	require.ErrorIs(t, err, kind)
	var gerr *goclmm.Error
	require.True(t, errors.As(err, &gerr), "error %v is not a *goclmm.Error", err)
	return gerr
}

// requireNothingLive checks that all the objects created on the host driver have been released.
func requireNothingLive(t *testing.T, d *host.Driver) {
	for _, kind := range []host.Kind{host.KindContext, host.KindQueue, host.KindProgram, host.KindMem, host.KindKernel, host.KindEvent} {
		require.Zero(t, d.Live(kind), "%s objects still alive", kind)
	}
	require.Zero(t, d.LiveBytes())
}
