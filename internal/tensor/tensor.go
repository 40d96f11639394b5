package tensor

import (
	"fmt"
	"math/rand"
)

// Tensor is a dense row-major array of float32 values with an explicit shape.
//
// The forward pipeline works almost exclusively with rank-3 tensors, either
// (batch, channels, length) on the convolutional side or (batch, time,
// features) on the recurrent/attention side. Tensor does not perform any
// memory safety beyond the checks of Go's slice types; out-of-range indices
// panic.
type Tensor struct {
	Data    []float32
	Shape   []int
	Strides []int
}

func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// New allocates a zero-initialised tensor with the given shape.
func New(shape ...int) *Tensor {
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension in shape %v", shape))
		}
	}
	return &Tensor{
		Data:    make([]float32, numel(shape)),
		Shape:   append([]int(nil), shape...),
		Strides: computeStrides(shape),
	}
}

// FromSlice wraps existing data in a tensor with the given shape.
// The data is not copied.
func FromSlice(data []float32, shape ...int) *Tensor {
	if len(data) != numel(shape) {
		panic(fmt.Sprintf("tensor: data length %d does not match shape %v", len(data), shape))
	}
	return &Tensor{
		Data:    data,
		Shape:   append([]int(nil), shape...),
		Strides: computeStrides(shape),
	}
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := New(t.Shape...)
	copy(out.Data, t.Data)
	return out
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.Shape[i] }

// Reshape returns a view over the same data with a new shape.
// The element count must match.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	if numel(shape) != len(t.Data) {
		panic(fmt.Sprintf("tensor: cannot reshape %v to %v", t.Shape, shape))
	}
	return &Tensor{
		Data:    t.Data,
		Shape:   append([]int(nil), shape...),
		Strides: computeStrides(shape),
	}
}

// ShapeEquals reports whether t and o have identical shapes.
func (t *Tensor) ShapeEquals(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// Permute021 swaps the last two dimensions of a rank-3 tensor, copying the
// data into the new layout. This is the (batch, channels, length) <->
// (batch, time, features) pivot between the conv stack and the recurrent
// encoder.
func (t *Tensor) Permute021() *Tensor {
	if t.Rank() != 3 {
		panic(fmt.Sprintf("tensor: Permute021 requires rank 3, got shape %v", t.Shape))
	}
	b, d1, d2 := t.Shape[0], t.Shape[1], t.Shape[2]
	out := New(b, d2, d1)
	for n := 0; n < b; n++ {
		src := t.Data[n*d1*d2 : (n+1)*d1*d2]
		dst := out.Data[n*d1*d2 : (n+1)*d1*d2]
		for i := 0; i < d1; i++ {
			for j := 0; j < d2; j++ {
				dst[j*d1+i] = src[i*d2+j]
			}
		}
	}
	return out
}

// Row returns a view of row i of a rank-2 tensor.
func (t *Tensor) Row(i int) []float32 {
	if t.Rank() != 2 {
		panic(fmt.Sprintf("tensor: Row requires rank 2, got shape %v", t.Shape))
	}
	c := t.Shape[1]
	return t.Data[i*c : (i+1)*c]
}

// Squeeze drops all dimensions of size 1, mirroring the trailing-singleton
// collapse the attention block performs before returning. A scalar keeps a
// single dimension of size 1.
func (t *Tensor) Squeeze() *Tensor {
	shape := make([]int, 0, len(t.Shape))
	for _, d := range t.Shape {
		if d != 1 {
			shape = append(shape, d)
		}
	}
	if len(shape) == 0 {
		shape = []int{1}
	}
	return t.Reshape(shape...)
}

// FoldHeads splits the last dimension of a rank-3 tensor (b, l, h*d) into h
// chunks and stacks them along the batch axis, producing (h*b, l, d). The
// head index is folded into the batch dimension so a single batched attention
// call covers all heads.
func FoldHeads(t *Tensor, heads int) *Tensor {
	if t.Rank() != 3 {
		panic(fmt.Sprintf("tensor: FoldHeads requires rank 3, got shape %v", t.Shape))
	}
	b, l, f := t.Shape[0], t.Shape[1], t.Shape[2]
	if f%heads != 0 {
		panic(fmt.Sprintf("tensor: feature dim %d not divisible by %d heads", f, heads))
	}
	d := f / heads
	out := New(heads*b, l, d)
	for h := 0; h < heads; h++ {
		for n := 0; n < b; n++ {
			for i := 0; i < l; i++ {
				src := t.Data[n*l*f+i*f+h*d : n*l*f+i*f+(h+1)*d]
				dst := out.Data[(h*b+n)*l*d+i*d : (h*b+n)*l*d+(i+1)*d]
				copy(dst, src)
			}
		}
	}
	return out
}

// UnfoldHeads is the inverse of FoldHeads: it splits (h*b, l, d) along the
// batch axis into h chunks and concatenates them along the feature axis,
// restoring (b, l, h*d).
func UnfoldHeads(t *Tensor, heads int) *Tensor {
	if t.Rank() != 3 {
		panic(fmt.Sprintf("tensor: UnfoldHeads requires rank 3, got shape %v", t.Shape))
	}
	hb, l, d := t.Shape[0], t.Shape[1], t.Shape[2]
	if hb%heads != 0 {
		panic(fmt.Sprintf("tensor: batch dim %d not divisible by %d heads", hb, heads))
	}
	b := hb / heads
	out := New(b, l, heads*d)
	f := heads * d
	for h := 0; h < heads; h++ {
		for n := 0; n < b; n++ {
			for i := 0; i < l; i++ {
				src := t.Data[(h*b+n)*l*d+i*d : (h*b+n)*l*d+(i+1)*d]
				dst := out.Data[n*l*f+i*f+h*d : n*l*f+i*f+(h+1)*d]
				copy(dst, src)
			}
		}
	}
	return out
}

// FillRand fills the tensor with reproducible pseudo-random values in a small
// range around zero. Multiple calls with the same seed produce identical
// tensors.
func FillRand(t *Tensor, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range t.Data {
		t.Data[i] = (rng.Float32() - 0.5) * 0.02
	}
}
