package goclmm

import (
	"fmt"
	"slices"
	"unsafe"

	"github.com/gomlx/goclmm/dims"
	"github.com/gomlx/goclmm/dtypes"
	"github.com/pkg/errors"
)

// Matrix is an R x C matrix of T, with its data on the host (in row-major order) and a buffer of the same size
// on the device of its session.
//
// The host data and the device buffer are synchronized explicitly, with Stage and Retrieve.
// The device buffer is owned by the session: it is released when the session is torn down, and the matrix can't
// be used for device work afterwards.
type Matrix[R, C dims.Dim, T dtypes.Supported] struct {
	session *Session
	buffer  int // Index in the session buffer table.
	host    []T
}

// NewMatrix creates a zero-initialized matrix and allocates its device buffer on the session.
func NewMatrix[R, C dims.Dim, T dtypes.Supported](s *Session) (*Matrix[R, C, T], error) {
	return newMatrix[R, C](s, make([]T, dims.Len[R]()*dims.Len[C]()))
}

// NewMatrixFrom creates a matrix with a copy of data, given in row-major order, and allocates its device buffer
// on the session. The data is not staged.
//
// It returns an ErrShapeMismatch error if data doesn't have R*C elements.
func NewMatrixFrom[R, C dims.Dim, T dtypes.Supported](s *Session, data []T) (*Matrix[R, C, T], error) {
	rows, cols := dims.Len[R](), dims.Len[C]()
	if len(data) != rows*cols {
		return nil, newError(ErrShapeMismatch, "", errors.Errorf("got %d elements for a %dx%d matrix", len(data), rows, cols))
	}
	return newMatrix[R, C](s, slices.Clone(data))
}

func newMatrix[R, C dims.Dim, T dtypes.Supported](s *Session, host []T) (*Matrix[R, C, T], error) {
	buffer, err := s.allocate(len(host) * dtypes.FromGenericsType[T]().Size())
	if err != nil {
		return nil, err
	}
	return &Matrix[R, C, T]{session: s, buffer: buffer, host: host}, nil
}

// Rows returns the number of rows, R.
func (m *Matrix[R, C, T]) Rows() int {
	return dims.Len[R]()
}

// Cols returns the number of columns, C.
func (m *Matrix[R, C, T]) Cols() int {
	return dims.Len[C]()
}

// DType returns the element type.
func (m *Matrix[R, C, T]) DType() dtypes.DType {
	return dtypes.FromGenericsType[T]()
}

// Session returns the session that owns the device buffer of the matrix.
func (m *Matrix[R, C, T]) Session() *Session {
	return m.session
}

// Get returns the host value at row i and column j, or false if the position is out of the matrix.
func (m *Matrix[R, C, T]) Get(i, j int) (value T, ok bool) {
	if i < 0 || i >= m.Rows() || j < 0 || j >= m.Cols() {
		return
	}
	return m.host[i*m.Cols()+j], true
}

// Set the host value at row i and column j. It returns false, and does nothing, if the position is out of the
// matrix.
func (m *Matrix[R, C, T]) Set(i, j int, value T) bool {
	if i < 0 || i >= m.Rows() || j < 0 || j >= m.Cols() {
		return false
	}
	m.host[i*m.Cols()+j] = value
	return true
}

// Host returns a copy of the host data, in row-major order.
func (m *Matrix[R, C, T]) Host() []T {
	return slices.Clone(m.host)
}

// hostBytes returns the host data as raw bytes, sharing the storage.
func (m *Matrix[R, C, T]) hostBytes() []byte {
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(m.host))), len(m.host)*int(unsafe.Sizeof(zero)))
}

// Stage copies the host data to the device buffer. It blocks until the copy is complete.
func (m *Matrix[R, C, T]) Stage() error {
	mem, err := m.session.buffer(m.buffer)
	if err != nil {
		return err
	}
	if err = m.session.driver.EnqueueWriteBuffer(m.session.queue, mem, m.hostBytes()); err != nil {
		return newError(ErrDispatchFailed, "clEnqueueWriteBuffer", err)
	}
	return nil
}

// Retrieve copies the device buffer to the host data. It blocks until the copy is complete.
func (m *Matrix[R, C, T]) Retrieve() error {
	mem, err := m.session.buffer(m.buffer)
	if err != nil {
		return err
	}
	if err = m.session.driver.EnqueueReadBuffer(m.session.queue, mem, m.hostBytes()); err != nil {
		return newError(ErrDispatchFailed, "clEnqueueReadBuffer", err)
	}
	return nil
}

// String implements fmt.Stringer.
func (m *Matrix[R, C, T]) String() string {
	return fmt.Sprintf("Matrix[%dx%d %s]", m.Rows(), m.Cols(), m.DType())
}
