// Package dims defines compile-time matrix dimensions.
//
// A dimension is a type, not a value: Matrix[dims.D4, dims.D8, float32] is a 4x8 matrix, and a multiplication
// of an NxM by a MxK matrix only type-checks when the inner dimensions are the same type.
//
// New dimensions are declared with an empty struct implementing Dim:
//
//	type D96 struct{}
//
//	func (D96) Len() int { return 96 }
package dims

// Dim is implemented by dimension marker types. Len must return a positive constant.
type Dim interface {
	Len() int
}

// Len returns the length of the dimension D.
func Len[D Dim]() int {
	var d D
	return d.Len()
}

type (
	D1    struct{}
	D2    struct{}
	D3    struct{}
	D4    struct{}
	D8    struct{}
	D16   struct{}
	D32   struct{}
	D64   struct{}
	D80   struct{}
	D90   struct{}
	D100  struct{}
	D128  struct{}
	D256  struct{}
	D512  struct{}
	D1024 struct{}
)

func (D1) Len() int    { return 1 }
func (D2) Len() int    { return 2 }
func (D3) Len() int    { return 3 }
func (D4) Len() int    { return 4 }
func (D8) Len() int    { return 8 }
func (D16) Len() int   { return 16 }
func (D32) Len() int   { return 32 }
func (D64) Len() int   { return 64 }
func (D80) Len() int   { return 80 }
func (D90) Len() int   { return 90 }
func (D100) Len() int  { return 100 }
func (D128) Len() int  { return 128 }
func (D256) Len() int  { return 256 }
func (D512) Len() int  { return 512 }
func (D1024) Len() int { return 1024 }
