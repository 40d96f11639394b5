package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cardioml/ecgnet/internal/tensor"
)

// Conv1d is a 1D convolution over (batch, channels, length) input.
// The weight is stored (out, in, kernel).
type Conv1d struct {
	InChannels  int
	OutChannels int
	Kernel      int
	Stride      int
	Padding     int

	W *tensor.Tensor
	B *tensor.Tensor
}

// NewConv1d constructs a convolution with U(-1/sqrt(in*k), 1/sqrt(in*k)) init.
func NewConv1d(in, out, kernel, stride, padding int, rng *rand.Rand) *Conv1d {
	if kernel < 1 || stride < 1 || padding < 0 {
		panic(fmt.Sprintf("nn: invalid conv geometry kernel=%d stride=%d padding=%d", kernel, stride, padding))
	}
	c := &Conv1d{
		InChannels:  in,
		OutChannels: out,
		Kernel:      kernel,
		Stride:      stride,
		Padding:     padding,
		W:           tensor.New(out, in, kernel),
		B:           tensor.New(out),
	}
	bound := kaimingBound(in * kernel)
	uniformInit(c.W.Data, bound, rng)
	uniformInit(c.B.Data, bound, rng)
	return c
}

// OutLen returns the output length for an input of length l.
func (c *Conv1d) OutLen(l int) int {
	return (l+2*c.Padding-c.Kernel)/c.Stride + 1
}

// Forward applies the convolution, producing (batch, out, OutLen(length)).
func (c *Conv1d) Forward(x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() != 3 || x.Shape[1] != c.InChannels {
		panic(fmt.Sprintf("nn: conv expects (batch, %d, length), got shape %v", c.InChannels, x.Shape))
	}
	b, l := x.Shape[0], x.Shape[2]
	outLen := c.OutLen(l)
	if outLen < 1 {
		panic(fmt.Sprintf("nn: conv input length %d too short for kernel %d", l, c.Kernel))
	}
	out := tensor.New(b, c.OutChannels, outLen)
	tensor.ParallelFor(b*c.OutChannels, func(start, end int) {
		for idx := start; idx < end; idx++ {
			n := idx / c.OutChannels
			o := idx % c.OutChannels
			dst := out.Data[(n*c.OutChannels+o)*outLen : (n*c.OutChannels+o+1)*outLen]
			bias := c.B.Data[o]
			for j := 0; j < outLen; j++ {
				sum := bias
				base := j*c.Stride - c.Padding
				for ch := 0; ch < c.InChannels; ch++ {
					wrow := c.W.Data[(o*c.InChannels+ch)*c.Kernel : (o*c.InChannels+ch+1)*c.Kernel]
					xrow := x.Data[(n*c.InChannels+ch)*l : (n*c.InChannels+ch+1)*l]
					t0 := 0
					if base < 0 {
						t0 = -base
					}
					t1 := c.Kernel
					if base+t1 > l {
						t1 = l - base
					}
					for t := t0; t < t1; t++ {
						sum += wrow[t] * xrow[base+t]
					}
				}
				dst[j] = sum
			}
		}
	})
	return out
}

func (c *Conv1d) Params(prefix string) []Param {
	return []Param{
		{Name: prefix + ".weight", Tensor: c.W},
		{Name: prefix + ".bias", Tensor: c.B},
	}
}

// MaxPool1d is a 1D max pooling layer over (batch, channels, length).
type MaxPool1d struct {
	Kernel int
	Stride int
}

func (p *MaxPool1d) OutLen(l int) int { return (l-p.Kernel)/p.Stride + 1 }

func (p *MaxPool1d) Forward(x *tensor.Tensor) *tensor.Tensor {
	return pool1d(x, p.Kernel, p.Stride, func(window []float32) float32 {
		maxv := float32(math.Inf(-1))
		for _, v := range window {
			if v > maxv {
				maxv = v
			}
		}
		return maxv
	})
}

// AvgPool1d is a 1D average pooling layer over (batch, channels, length).
type AvgPool1d struct {
	Kernel int
	Stride int
}

func (p *AvgPool1d) OutLen(l int) int { return (l-p.Kernel)/p.Stride + 1 }

func (p *AvgPool1d) Forward(x *tensor.Tensor) *tensor.Tensor {
	inv := float32(1.0) / float32(p.Kernel)
	return pool1d(x, p.Kernel, p.Stride, func(window []float32) float32 {
		var sum float32
		for _, v := range window {
			sum += v
		}
		return sum * inv
	})
}

func pool1d(x *tensor.Tensor, kernel, stride int, reduce func([]float32) float32) *tensor.Tensor {
	if x.Rank() != 3 {
		panic(fmt.Sprintf("nn: pool expects rank 3 input, got shape %v", x.Shape))
	}
	b, ch, l := x.Shape[0], x.Shape[1], x.Shape[2]
	outLen := (l-kernel)/stride + 1
	if outLen < 1 {
		panic(fmt.Sprintf("nn: pool input length %d too short for kernel %d", l, kernel))
	}
	out := tensor.New(b, ch, outLen)
	for n := 0; n < b; n++ {
		for c := 0; c < ch; c++ {
			src := x.Data[(n*ch+c)*l : (n*ch+c+1)*l]
			dst := out.Data[(n*ch+c)*outLen : (n*ch+c+1)*outLen]
			for j := 0; j < outLen; j++ {
				dst[j] = reduce(src[j*stride : j*stride+kernel])
			}
		}
	}
	return out
}
