package nn

import (
	"fmt"
	"math"

	"github.com/cardioml/ecgnet/internal/tensor"
)

const (
	normEps      = 1e-5
	bnMomentum   = 0.1
	bnUnbiasedAt = 1 // running variance uses the unbiased estimator when n > 1
)

// BatchNorm1d normalises per channel over the batch (and, for rank-3 input,
// the length) dimension. In training mode it uses batch statistics and
// updates the running estimates; in eval mode it applies the running
// estimates.
type BatchNorm1d struct {
	Features int

	Gamma       *tensor.Tensor
	Beta        *tensor.Tensor
	RunningMean *tensor.Tensor
	RunningVar  *tensor.Tensor
}

func NewBatchNorm1d(features int) *BatchNorm1d {
	bn := &BatchNorm1d{
		Features:    features,
		Gamma:       tensor.New(features),
		Beta:        tensor.New(features),
		RunningMean: tensor.New(features),
		RunningVar:  tensor.New(features),
	}
	for i := range bn.Gamma.Data {
		bn.Gamma.Data[i] = 1
		bn.RunningVar.Data[i] = 1
	}
	return bn
}

// Forward accepts (batch, features) or (batch, features, length) input.
func (bn *BatchNorm1d) Forward(ctx *Context, x *tensor.Tensor) *tensor.Tensor {
	var b, l int
	switch x.Rank() {
	case 2:
		b, l = x.Shape[0], 1
	case 3:
		b, l = x.Shape[0], x.Shape[2]
	default:
		panic(fmt.Sprintf("nn: batchnorm expects rank 2 or 3 input, got shape %v", x.Shape))
	}
	if x.Shape[1] != bn.Features {
		panic(fmt.Sprintf("nn: batchnorm expects %d features, got shape %v", bn.Features, x.Shape))
	}

	out := x.Clone()
	n := b * l
	for c := 0; c < bn.Features; c++ {
		var mean, variance float32
		if ctx.Training {
			var sum float64
			forEachChannel(x, c, b, l, func(v float32) { sum += float64(v) })
			mean = float32(sum / float64(n))
			var sq float64
			forEachChannel(x, c, b, l, func(v float32) {
				d := float64(v - mean)
				sq += d * d
			})
			variance = float32(sq / float64(n))

			unbiased := variance
			if n > bnUnbiasedAt {
				unbiased = float32(sq / float64(n-1))
			}
			bn.RunningMean.Data[c] = (1-bnMomentum)*bn.RunningMean.Data[c] + bnMomentum*mean
			bn.RunningVar.Data[c] = (1-bnMomentum)*bn.RunningVar.Data[c] + bnMomentum*unbiased
		} else {
			mean = bn.RunningMean.Data[c]
			variance = bn.RunningVar.Data[c]
		}
		scale := bn.Gamma.Data[c] / float32(math.Sqrt(float64(variance)+normEps))
		shift := bn.Beta.Data[c] - mean*scale
		applyChannel(out, c, b, l, scale, shift)
	}
	return out
}

func forEachChannel(x *tensor.Tensor, c, b, l int, fn func(float32)) {
	ch := x.Shape[1]
	for n := 0; n < b; n++ {
		off := (n*ch + c) * l
		for i := 0; i < l; i++ {
			fn(x.Data[off+i])
		}
	}
}

func applyChannel(x *tensor.Tensor, c, b, l int, scale, shift float32) {
	ch := x.Shape[1]
	for n := 0; n < b; n++ {
		off := (n*ch + c) * l
		for i := 0; i < l; i++ {
			x.Data[off+i] = x.Data[off+i]*scale + shift
		}
	}
}

func (bn *BatchNorm1d) Params(prefix string) []Param {
	return []Param{
		{Name: prefix + ".weight", Tensor: bn.Gamma},
		{Name: prefix + ".bias", Tensor: bn.Beta},
		{Name: prefix + ".running_mean", Tensor: bn.RunningMean},
		{Name: prefix + ".running_var", Tensor: bn.RunningVar},
	}
}

// InstanceNorm1d normalises each (sample, channel) pair over the length
// dimension, with learned affine parameters. It uses instance statistics in
// both modes and keeps no running estimates.
type InstanceNorm1d struct {
	Features int

	Gamma *tensor.Tensor
	Beta  *tensor.Tensor
}

func NewInstanceNorm1d(features int) *InstanceNorm1d {
	in := &InstanceNorm1d{
		Features: features,
		Gamma:    tensor.New(features),
		Beta:     tensor.New(features),
	}
	for i := range in.Gamma.Data {
		in.Gamma.Data[i] = 1
	}
	return in
}

// Forward accepts (batch, features, length) input.
func (in *InstanceNorm1d) Forward(_ *Context, x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() != 3 || x.Shape[1] != in.Features {
		panic(fmt.Sprintf("nn: instancenorm expects (batch, %d, length), got shape %v", in.Features, x.Shape))
	}
	b, l := x.Shape[0], x.Shape[2]
	out := x.Clone()
	for n := 0; n < b; n++ {
		for c := 0; c < in.Features; c++ {
			off := (n*in.Features + c) * l
			row := out.Data[off : off+l]
			var sum float64
			for _, v := range row {
				sum += float64(v)
			}
			mean := float32(sum / float64(l))
			var sq float64
			for _, v := range row {
				d := float64(v - mean)
				sq += d * d
			}
			variance := float32(sq / float64(l))
			scale := in.Gamma.Data[c] / float32(math.Sqrt(float64(variance)+normEps))
			shift := in.Beta.Data[c] - mean*scale
			for i := range row {
				row[i] = row[i]*scale + shift
			}
		}
	}
	return out
}

func (in *InstanceNorm1d) Params(prefix string) []Param {
	return []Param{
		{Name: prefix + ".weight", Tensor: in.Gamma},
		{Name: prefix + ".bias", Tensor: in.Beta},
	}
}

// Norm is the shared interface of the two normalisation layers.
type Norm interface {
	ParamSource
	Forward(ctx *Context, x *tensor.Tensor) *tensor.Tensor
}
