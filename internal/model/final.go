package model

import (
	"fmt"
	"math/rand"

	"github.com/cardioml/ecgnet/internal/attention"
	"github.com/cardioml/ecgnet/internal/nn"
	"github.com/cardioml/ecgnet/internal/tensor"
)

// Model is the assembled classifier. Construction either succeeds completely
// or fails with a configuration error; a constructed model only reports
// errors for malformed forward inputs.
type Model struct {
	cfg Config

	preConv *nn.Conv1d
	preNorm nn.Norm

	// Exactly one of the two first-stage sets is populated, matching the
	// pre-activation toggle.
	firstPre  [4]*PreActivationBlock
	firstPost [4]*ConvBlock

	// The second stage is a pre-activation block only when the design is
	// pre-activation and the skip policy includes the last block; otherwise
	// it is a post-activation block (with skips governed by the policy).
	secondPre  *PreActivationBlock
	secondPost *ConvBlock

	gru     *nn.BiGRU
	gruDrop *nn.Dropout

	pooling attention.Contextual

	headNorm *nn.BatchNorm1d
	headDrop *nn.Dropout
	fc       *nn.Linear
}

// New validates cfg and constructs the full pipeline with seeded random
// initialisation.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	m := &Model{cfg: cfg}

	channels := cfg.channelLadder()
	firstGeom := func(in, out int) blockGeometry {
		return blockGeometry{
			InChannels:  in,
			OutChannels: out,
			MidKernel:   cfg.MidKernelSizeFirstConvBlocks,
			LastKernel:  cfg.LastKernelSizeFirstConvBlocks,
			Stride:      cfg.StrideFirstConvBlocks,
			DownSample:  cfg.DownSample,
			DropOut:     cfg.DropOutFirstConvBlocks,
			NormType:    cfg.NormType,
			NormPos:     cfg.NormPos,
		}
	}
	secondGeom := blockGeometry{
		InChannels:  channels[3],
		OutChannels: channels[4],
		MidKernel:   cfg.MidKernelSizeSecondConvBlocks,
		LastKernel:  cfg.LastKernelSizeSecondConvBlocks,
		Stride:      cfg.StrideSecondConvBlocks,
		DownSample:  cfg.DownSample,
		DropOut:     cfg.DropOutSecondConvBlocks,
		NormType:    cfg.NormType,
		NormPos:     cfg.NormPos,
	}

	var err error
	if cfg.UsePreActivationDesign {
		if cfg.UsePreConv {
			m.preConv = nn.NewConv1d(cfg.InputChannels, cfg.InputChannels, cfg.PreConvKernel, 1, 0, rng)
			if m.preNorm, err = newNorm(cfg.NormType, cfg.InputChannels); err != nil {
				return nil, err
			}
		}
		in := cfg.InputChannels
		for i := 0; i < 4; i++ {
			m.firstPre[i], err = NewPreActivationBlock(firstGeom(in, channels[i]), cfg.NormBeforeAct, rng)
			if err != nil {
				return nil, err
			}
			in = channels[i]
		}
		switch cfg.PosSkip {
		case PosSkipAll:
			if m.secondPre, err = NewPreActivationBlock(secondGeom, cfg.NormBeforeAct, rng); err != nil {
				return nil, err
			}
		case PosSkipNotLast:
			// The chain's residual stops ahead of the last block: it runs as a
			// plain post-activation block without skips.
			if m.secondPost, err = NewConvBlock(secondGeom, false, rng); err != nil {
				return nil, err
			}
		}
	} else {
		for i := 0; i < 4; i++ {
			skips := true
			if i == 0 && cfg.PosSkip == PosSkipNotFirst {
				skips = false
			}
			in := cfg.InputChannels
			if i > 0 {
				in = channels[i-1]
			}
			if m.firstPost[i], err = NewConvBlock(firstGeom(in, channels[i]), skips, rng); err != nil {
				return nil, err
			}
		}
		if m.secondPost, err = NewConvBlock(secondGeom, cfg.PosSkip != PosSkipNotLast, rng); err != nil {
			return nil, err
		}
	}

	m.gru = nn.NewBiGRU(channels[4], cfg.GRUUnits, rng)
	m.gruDrop = nn.NewDropout(cfg.DropOutGRU)

	m.pooling, err = attention.NewContextual(attention.Config{
		Variant:         cfg.AttentionType,
		DModel:          2 * cfg.GRUUnits,
		Heads:           cfg.Heads,
		Dropout:         cfg.DropoutAttention,
		TanhKeys:        cfg.DiscardFCBeforeMH,
		ReducedHeadDims: cfg.UseReducedHeadDims,
		Activation:      cfg.AttentionActivation,
	}, rng)
	if err != nil {
		return nil, err
	}

	m.headNorm = nn.NewBatchNorm1d(2 * cfg.GRUUnits)
	m.headDrop = nn.NewDropout(cfg.DropOutLastBN)
	m.fc = nn.NewLinear(2*cfg.GRUUnits, cfg.NumClasses, rng)
	return m, nil
}

// Config returns the configuration the model was constructed with.
func (m *Model) Config() Config { return m.cfg }

// Forward runs one batch through the pipeline. x must be
// (batch, InputChannels, length); the result is (batch, NumClasses):
// probabilities when ApplyFinalActivation is set, raw logits otherwise.
func (m *Model) Forward(ctx *nn.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
	return m.forward(ctx, x, nil)
}

// trace receives every stage boundary during a forward pass; used by Summary.
type traceFunc func(name string, out *tensor.Tensor)

func (m *Model) forward(ctx *nn.Context, x *tensor.Tensor, trace traceFunc) (*tensor.Tensor, error) {
	if x.Rank() != 3 || x.Shape[1] != m.cfg.InputChannels {
		return nil, fmt.Errorf("model: input must be (batch, %d, length), got shape %v", m.cfg.InputChannels, x.Shape)
	}
	note := func(name string, out *tensor.Tensor) {
		if trace != nil {
			trace(name, out)
		}
	}

	if m.cfg.UsePreActivationDesign {
		if m.preConv != nil {
			x = m.preConv.Forward(x)
			if m.cfg.NormBeforeAct {
				x = m.preNorm.Forward(ctx, x)
				tensor.LeakyReLUInPlace(x, leakySlope)
			} else {
				tensor.LeakyReLUInPlace(x, leakySlope)
				x = m.preNorm.Forward(ctx, x)
			}
			note("pre_conv", x)
		}
		// The first block seeds the residual chain with its own input.
		s := StageOutput{Out: x, Residual: x}
		for i, b := range m.firstPre {
			s = b.Forward(ctx, s)
			note(fmt.Sprintf("first_conv_block_%d", i+1), s.Out)
		}
		// The final stage branches on the skip policy: with skips it stays in
		// pair form, without them the pair is unwrapped and the residual
		// dropped before the plain block runs.
		switch m.cfg.PosSkip {
		case PosSkipAll:
			s = m.secondPre.Forward(ctx, s)
			x = s.Out
		case PosSkipNotLast:
			x = m.secondPost.Forward(ctx, s.Out)
		}
		note("second_conv_block_1", x)
	} else {
		for i, b := range m.firstPost {
			x = b.Forward(ctx, x)
			note(fmt.Sprintf("first_conv_block_%d", i+1), x)
		}
		x = m.secondPost.Forward(ctx, x)
		note("second_conv_block_1", x)
	}

	// Switch sequence length and feature size for the BiGRU.
	x = x.Permute021()
	x = m.gru.Forward(x)
	tensor.LeakyReLUInPlace(x, leakySlope)
	x = m.gruDrop.Forward(ctx, x)
	note("bi_gru", x)

	x = m.pooling.Pool(ctx, x)
	note("contextual_attention", x)

	x = m.headNorm.Forward(ctx, x)
	tensor.LeakyReLUInPlace(x, leakySlope)
	x = m.headDrop.Forward(ctx, x)
	x = m.fc.Forward(x)
	note("fcn", x)

	if m.cfg.ApplyFinalActivation {
		if m.cfg.MultiLabelTraining {
			tensor.SigmoidInPlace(x)
		} else {
			tensor.LogSoftmaxLastDim(x)
		}
		note("final_activation", x)
	}
	return x, nil
}

// Params returns every learned parameter (and normalisation running
// statistic) with stable names.
func (m *Model) Params() []nn.Param {
	var params []nn.Param
	if m.preConv != nil {
		params = append(params, m.preConv.Params("pre_conv")...)
		params = append(params, m.preNorm.Params("pre_norm")...)
	}
	for i := 0; i < 4; i++ {
		prefix := fmt.Sprintf("first_conv_block_%d", i+1)
		if m.firstPre[i] != nil {
			params = append(params, m.firstPre[i].Params(prefix)...)
		}
		if m.firstPost[i] != nil {
			params = append(params, m.firstPost[i].Params(prefix)...)
		}
	}
	if m.secondPre != nil {
		params = append(params, m.secondPre.Params("second_conv_block_1")...)
	}
	if m.secondPost != nil {
		params = append(params, m.secondPost.Params("second_conv_block_1")...)
	}
	params = append(params, m.gru.Params("bi_gru")...)
	params = append(params, m.pooling.Params("contextual_attention")...)
	params = append(params, m.headNorm.Params("head_norm")...)
	params = append(params, m.fc.Params("fcn")...)
	return params
}

// ParamCount returns the total number of stored parameter elements.
func (m *Model) ParamCount() int {
	var n int
	for _, p := range m.Params() {
		n += len(p.Tensor.Data)
	}
	return n
}
