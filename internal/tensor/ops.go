package tensor

import (
	"fmt"
	"math"
)

// Add adds src to dst element-wise. Shapes must match exactly; residual joins
// rely on this failing fast rather than broadcasting.
func Add(dst, src *Tensor) {
	if !dst.ShapeEquals(src) {
		panic(fmt.Sprintf("tensor: add shape mismatch %v vs %v", dst.Shape, src.Shape))
	}
	for i := range dst.Data {
		dst.Data[i] += src.Data[i]
	}
}

// Scale multiplies every element of t by s in place.
func Scale(t *Tensor, s float32) {
	for i := range t.Data {
		t.Data[i] *= s
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Softmax normalises x in place so the entries are non-negative and sum to 1.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// SoftmaxLastDim applies Softmax independently over the last dimension.
func SoftmaxLastDim(t *Tensor) {
	n := t.Shape[len(t.Shape)-1]
	if n == 0 {
		return
	}
	for off := 0; off < len(t.Data); off += n {
		Softmax(t.Data[off : off+n])
	}
}

// LogSoftmaxLastDim applies log-softmax over the last dimension in place.
func LogSoftmaxLastDim(t *Tensor) {
	n := t.Shape[len(t.Shape)-1]
	if n == 0 {
		return
	}
	for off := 0; off < len(t.Data); off += n {
		row := t.Data[off : off+n]
		maxv := row[0]
		for _, v := range row[1:] {
			if v > maxv {
				maxv = v
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - maxv))
		}
		lse := maxv + float32(math.Log(sum))
		for i := range row {
			row[i] -= lse
		}
	}
}

// Sigmoid computes the logistic sigmoid activation.
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}

// Tanh computes the hyperbolic tangent activation.
func Tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

// SigmoidInPlace applies Sigmoid element-wise.
func SigmoidInPlace(t *Tensor) {
	for i, v := range t.Data {
		t.Data[i] = Sigmoid(v)
	}
}

// TanhInPlace applies Tanh element-wise.
func TanhInPlace(t *Tensor) {
	for i, v := range t.Data {
		t.Data[i] = Tanh(v)
	}
}

// ReLUInPlace applies max(0, x) element-wise.
func ReLUInPlace(t *Tensor) {
	for i, v := range t.Data {
		if v < 0 {
			t.Data[i] = 0
		}
	}
}

// LeakyReLUInPlace applies x if x >= 0 else slope*x, element-wise.
func LeakyReLUInPlace(t *Tensor, slope float32) {
	for i, v := range t.Data {
		if v < 0 {
			t.Data[i] = slope * v
		}
	}
}

// MeanDim1 reduces a rank-3 tensor (b, t, f) over its middle dimension,
// returning (b, f). Used for the time-mean pooling queries.
func MeanDim1(t *Tensor) *Tensor {
	if t.Rank() != 3 {
		panic(fmt.Sprintf("tensor: MeanDim1 requires rank 3, got shape %v", t.Shape))
	}
	b, steps, f := t.Shape[0], t.Shape[1], t.Shape[2]
	out := New(b, f)
	if steps == 0 {
		return out
	}
	inv := float32(1.0) / float32(steps)
	for n := 0; n < b; n++ {
		dst := out.Data[n*f : (n+1)*f]
		for i := 0; i < steps; i++ {
			src := t.Data[n*steps*f+i*f : n*steps*f+(i+1)*f]
			for j, v := range src {
				dst[j] += v
			}
		}
		for j := range dst {
			dst[j] *= inv
		}
	}
	return out
}

// HasNaN reports whether t contains any NaN or infinite value.
func HasNaN(t *Tensor) bool {
	for _, v := range t.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return true
		}
	}
	return false
}
