package model

import (
	"fmt"
	"math/rand"

	"github.com/cardioml/ecgnet/internal/nn"
	"github.com/cardioml/ecgnet/internal/tensor"
)

const leakySlope = 0.3

// StageOutput is the value threaded through a chain of pre-activation blocks:
// the block output plus the residual accumulator the next block downsamples
// and folds back in. Post-activation blocks consume and produce bare tensors;
// the assembly branches on the two forms explicitly.
type StageOutput struct {
	Out      *tensor.Tensor
	Residual *tensor.Tensor
}

// blockGeometry is the shared construction surface of both block designs.
type blockGeometry struct {
	InChannels  int
	OutChannels int
	MidKernel   int
	LastKernel  int
	Stride      int
	DownSample  string
	DropOut     float32
	NormType    string
	NormPos     string
}

func newNorm(normType string, features int) (nn.Norm, error) {
	switch normType {
	case NormBN:
		return nn.NewBatchNorm1d(features), nil
	case NormIN:
		return nn.NewInstanceNorm1d(features), nil
	default:
		return nil, fmt.Errorf("model: norm_type must be %s or %s, got %q", NormBN, NormIN, normType)
	}
}

// skipPath carries the block input to the join point, downsampled to the
// main path's stride and projected to its channel count.
type skipPath struct {
	maxPool *nn.MaxPool1d
	avgPool *nn.AvgPool1d
	proj    *nn.Conv1d // strided for the conv strategy, 1x1 after a pool
}

func newSkipPath(g blockGeometry, rng *rand.Rand) (*skipPath, error) {
	s := &skipPath{}
	switch g.DownSample {
	case DownSampleConv:
		// A kernel equal to the stride keeps the output length identical to
		// the strided main path for any input length.
		s.proj = nn.NewConv1d(g.InChannels, g.OutChannels, g.Stride, g.Stride, 0, rng)
	case DownSampleMaxPool:
		s.maxPool = &nn.MaxPool1d{Kernel: g.Stride, Stride: g.Stride}
		if g.InChannels != g.OutChannels {
			s.proj = nn.NewConv1d(g.InChannels, g.OutChannels, 1, 1, 0, rng)
		}
	case DownSampleAvgPool:
		s.avgPool = &nn.AvgPool1d{Kernel: g.Stride, Stride: g.Stride}
		if g.InChannels != g.OutChannels {
			s.proj = nn.NewConv1d(g.InChannels, g.OutChannels, 1, 1, 0, rng)
		}
	default:
		return nil, fmt.Errorf("model: downsampling must be %s, %s or %s, got %q",
			DownSampleConv, DownSampleMaxPool, DownSampleAvgPool, g.DownSample)
	}
	return s, nil
}

func (s *skipPath) Forward(x *tensor.Tensor) *tensor.Tensor {
	switch {
	case s.maxPool != nil:
		x = s.maxPool.Forward(x)
	case s.avgPool != nil:
		x = s.avgPool.Forward(x)
	}
	if s.proj != nil {
		x = s.proj.Forward(x)
	}
	return x
}

func (s *skipPath) Params(prefix string) []nn.Param {
	if s.proj == nil {
		return nil
	}
	return s.proj.Params(prefix + ".proj")
}

// ConvBlock is the post-activation residual unit: conv, norm, activation,
// strided conv, norm, optional skip join, activation, dropout.
type ConvBlock struct {
	conv1 *nn.Conv1d
	norm1 nn.Norm
	conv2 *nn.Conv1d
	norm2 nn.Norm
	skip  *skipPath
	drop  *nn.Dropout
}

// NewConvBlock constructs the block; skipsActive controls whether the
// residual join exists at all.
func NewConvBlock(g blockGeometry, skipsActive bool, rng *rand.Rand) (*ConvBlock, error) {
	b := &ConvBlock{
		conv1: nn.NewConv1d(g.InChannels, g.OutChannels, g.MidKernel, 1, (g.MidKernel-1)/2, rng),
		conv2: nn.NewConv1d(g.OutChannels, g.OutChannels, g.LastKernel, g.Stride, (g.LastKernel-g.Stride)/2, rng),
		drop:  nn.NewDropout(g.DropOut),
	}
	var err error
	if g.NormPos == NormPosAll || g.NormPos == NormPosFirst {
		if b.norm1, err = newNorm(g.NormType, g.OutChannels); err != nil {
			return nil, err
		}
	}
	if g.NormPos == NormPosAll || g.NormPos == NormPosLast {
		if b.norm2, err = newNorm(g.NormType, g.OutChannels); err != nil {
			return nil, err
		}
	}
	if skipsActive {
		if b.skip, err = newSkipPath(g, rng); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *ConvBlock) Forward(ctx *nn.Context, x *tensor.Tensor) *tensor.Tensor {
	y := b.conv1.Forward(x)
	if b.norm1 != nil {
		y = b.norm1.Forward(ctx, y)
	}
	tensor.LeakyReLUInPlace(y, leakySlope)
	y = b.conv2.Forward(y)
	if b.norm2 != nil {
		y = b.norm2.Forward(ctx, y)
	}
	if b.skip != nil {
		tensor.Add(y, b.skip.Forward(x))
	}
	tensor.LeakyReLUInPlace(y, leakySlope)
	return b.drop.Forward(ctx, y)
}

func (b *ConvBlock) Params(prefix string) []nn.Param {
	params := b.conv1.Params(prefix + ".conv1")
	if b.norm1 != nil {
		params = append(params, b.norm1.Params(prefix+".norm1")...)
	}
	params = append(params, b.conv2.Params(prefix+".conv2")...)
	if b.norm2 != nil {
		params = append(params, b.norm2.Params(prefix+".norm2")...)
	}
	if b.skip != nil {
		params = append(params, b.skip.Params(prefix+".skip")...)
	}
	return params
}

// PreActivationBlock is the pre-activation residual unit: norm and activation
// run ahead of each convolution (order set by normBeforeAct) and the skip
// connection is always active, carried through the chain as the residual half
// of StageOutput.
type PreActivationBlock struct {
	norm1         nn.Norm
	conv1         *nn.Conv1d
	norm2         nn.Norm
	conv2         *nn.Conv1d
	skip          *skipPath
	drop          *nn.Dropout
	normBeforeAct bool
}

func NewPreActivationBlock(g blockGeometry, normBeforeAct bool, rng *rand.Rand) (*PreActivationBlock, error) {
	b := &PreActivationBlock{
		conv1:         nn.NewConv1d(g.InChannels, g.OutChannels, g.MidKernel, 1, (g.MidKernel-1)/2, rng),
		conv2:         nn.NewConv1d(g.OutChannels, g.OutChannels, g.LastKernel, g.Stride, (g.LastKernel-g.Stride)/2, rng),
		drop:          nn.NewDropout(g.DropOut),
		normBeforeAct: normBeforeAct,
	}
	var err error
	if g.NormPos == NormPosAll || g.NormPos == NormPosFirst {
		// Stage one normalises the incoming features, ahead of conv1.
		if b.norm1, err = newNorm(g.NormType, g.InChannels); err != nil {
			return nil, err
		}
	}
	if g.NormPos == NormPosAll || g.NormPos == NormPosLast {
		if b.norm2, err = newNorm(g.NormType, g.OutChannels); err != nil {
			return nil, err
		}
	}
	if b.skip, err = newSkipPath(g, rng); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *PreActivationBlock) preAct(ctx *nn.Context, x *tensor.Tensor, norm nn.Norm) *tensor.Tensor {
	if norm == nil {
		y := x.Clone()
		tensor.LeakyReLUInPlace(y, leakySlope)
		return y
	}
	if b.normBeforeAct {
		y := norm.Forward(ctx, x)
		tensor.LeakyReLUInPlace(y, leakySlope)
		return y
	}
	y := x.Clone()
	tensor.LeakyReLUInPlace(y, leakySlope)
	return norm.Forward(ctx, y)
}

// Forward consumes and produces an (output, residual) pair. The residual
// joins the main path after both paths have been downsampled to the same
// length, and the joined value seeds the next block's residual.
func (b *PreActivationBlock) Forward(ctx *nn.Context, in StageOutput) StageOutput {
	if in.Out == nil || in.Residual == nil {
		panic("model: pre-activation block requires an (output, residual) pair")
	}
	y := b.preAct(ctx, in.Out, b.norm1)
	y = b.conv1.Forward(y)
	y = b.drop.Forward(ctx, y)
	y = b.preAct(ctx, y, b.norm2)
	y = b.conv2.Forward(y)

	res := b.skip.Forward(in.Residual)
	if !y.ShapeEquals(res) {
		panic(fmt.Sprintf("model: residual shape %v does not match block output %v", res.Shape, y.Shape))
	}
	tensor.Add(y, res)
	return StageOutput{Out: y, Residual: y}
}

func (b *PreActivationBlock) Params(prefix string) []nn.Param {
	var params []nn.Param
	if b.norm1 != nil {
		params = append(params, b.norm1.Params(prefix+".norm1")...)
	}
	params = append(params, b.conv1.Params(prefix+".conv1")...)
	if b.norm2 != nil {
		params = append(params, b.norm2.Params(prefix+".norm2")...)
	}
	params = append(params, b.conv2.Params(prefix+".conv2")...)
	params = append(params, b.skip.Params(prefix+".skip")...)
	return params
}
