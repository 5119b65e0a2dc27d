package goclmm

import (
	"k8s.io/klog/v2"
)

// Scope creates a Session, calls body with it, and tears the session down when body returns, releasing every
// device resource created during the scope.
//
// If the session can't be created, body is not called and the error is returned. Teardown always happens, even
// if body returns an error or panics; a panic is propagated after the teardown.
//
// The result of body is returned only if both body and the teardown succeed. If body fails, its error is
// returned (and a teardown failure is only logged), otherwise a teardown failure is returned as an
// ErrTeardownFailed error.
//
// Example:
//
//	product, err := goclmm.Scope(func(s *goclmm.Session) ([]float32, error) {
//		a, err := goclmm.NewMatrixFrom[dims.D4, dims.D8](s, aValues)
//		if err != nil {
//			return nil, err
//		}
//		b, err := goclmm.NewMatrixFrom[dims.D8, dims.D4](s, bValues)
//		if err != nil {
//			return nil, err
//		}
//		c, err := goclmm.Multiply(a, b, nil)
//		if err != nil {
//			return nil, err
//		}
//		return c.Host(), nil
//	})
func Scope[R any](body func(s *Session) (R, error), options ...Option) (result R, err error) {
	s, err := newSession(newConfig(options))
	if err != nil {
		return result, err
	}
	returned := false
	defer func() {
		errTeardown := s.teardown()
		if errTeardown == nil {
			return
		}
		switch {
		case !returned:
			klog.Errorf("goclmm: session teardown failed while panicking: %+v", errTeardown)
		case err != nil:
			klog.Errorf("goclmm: session teardown failed after scope error %v: %+v", err, errTeardown)
		default:
			var zero R
			result, err = zero, errTeardown
		}
	}()
	result, err = body(s)
	returned = true
	if err != nil {
		var zero R
		result = zero
	}
	return result, err
}

// Run is like Scope, for a body that returns no value.
func Run(body func(s *Session) error, options ...Option) error {
	_, err := Scope(func(s *Session) (struct{}, error) {
		return struct{}{}, body(s)
	}, options...)
	return err
}
