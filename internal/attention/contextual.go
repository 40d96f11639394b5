package attention

import (
	"fmt"
	"math/rand"

	"github.com/cardioml/ecgnet/internal/nn"
	"github.com/cardioml/ecgnet/internal/tensor"
)

// Pooling variants. All five summarise a (batch, time, dModel) sequence into
// a (batch, dModel) vector by attending over time with a self-derived query;
// they differ only in how that query is produced.
const (
	// VariantV1 uses the from-scratch MultiHead block with a randomly
	// initialised learned query. Reduced per-head dimensions and alternative
	// score activations are only available here.
	VariantV1 = "v1"
	// VariantV2 uses the standard attention layout (per-head width
	// dModel/heads) with a randomly initialised learned query.
	VariantV2 = "v2"
	// VariantV3 derives the query from the time-mean of the input. The query
	// is then a function of the very sequence it attends over, which biases
	// attention toward already-dominant positions. Kept exactly as the
	// reference experiments ran it; do not fix.
	VariantV3 = "v3"
	// VariantV4 produces the query by a learned linear projection of the
	// time-mean seed.
	VariantV4 = "v4"
	// VariantV5 matches v2 with Xavier-uniform query initialisation.
	VariantV5 = "v5"
)

// Config selects and parameterises a pooling variant.
type Config struct {
	Variant string
	DModel  int
	Heads   int
	Dropout float32

	// TanhKeys gates the key projection through a tanh, compensating for a
	// discarded feature-compression step ahead of the attention.
	TanhKeys bool

	// ReducedHeadDims overrides the per-head width. Zero means the variant
	// default (v1: dModel per head). Only valid for v1.
	ReducedHeadDims int

	// Activation replaces softmax for score normalisation. Empty means
	// softmax. Only valid for v1.
	Activation string
}

// Contextual pools a sequence into a fixed-size context vector.
type Contextual interface {
	nn.ParamSource
	Pool(ctx *nn.Context, x *tensor.Tensor) *tensor.Tensor
}

// NewContextual constructs the variant selected by cfg.Variant. Unknown
// variant tags and option combinations reserved for other variants fail
// construction with a descriptive error.
func NewContextual(cfg Config, rng *rand.Rand) (Contextual, error) {
	if cfg.Variant != VariantV1 {
		if cfg.ReducedHeadDims != 0 {
			return nil, fmt.Errorf("attention: reduced head dims only valid with variant v1, got %q", cfg.Variant)
		}
		if cfg.Activation != "" {
			return nil, fmt.Errorf("attention: custom activation only valid with variant v1, got %q", cfg.Variant)
		}
	}

	switch cfg.Variant {
	case VariantV1:
		dHead := cfg.DModel
		if cfg.ReducedHeadDims > 0 {
			dHead = cfg.ReducedHeadDims
		}
		mh, err := NewMultiHead(cfg.DModel, dHead, cfg.Heads, cfg.Dropout, cfg.TanhKeys, cfg.Activation, rng)
		if err != nil {
			return nil, err
		}
		return &learnedQueryPooling{
			variant: VariantV1,
			mh:      mh,
			query:   gaussianQuery(cfg.DModel, rng),
		}, nil
	case VariantV2, VariantV3, VariantV4, VariantV5:
		mh, err := newStandardAttention(cfg.DModel, cfg.Heads, cfg.Dropout, cfg.TanhKeys, rng)
		if err != nil {
			return nil, err
		}
		switch cfg.Variant {
		case VariantV2:
			return &learnedQueryPooling{variant: VariantV2, mh: mh, query: gaussianQuery(cfg.DModel, rng)}, nil
		case VariantV3:
			return &meanQueryPooling{mh: mh}, nil
		case VariantV4:
			return &projectedQueryPooling{mh: mh, proj: nn.NewLinear(cfg.DModel, cfg.DModel, rng)}, nil
		default:
			return &learnedQueryPooling{variant: VariantV5, mh: mh, query: xavierQuery(cfg.DModel, rng)}, nil
		}
	default:
		return nil, fmt.Errorf("attention: unsupported pooling variant %q", cfg.Variant)
	}
}

// newStandardAttention builds the MultiHead block in the conventional layout:
// per-head width dModel/heads, softmax scores.
func newStandardAttention(dModel, heads int, dropout float32, tanhKeys bool, rng *rand.Rand) (*MultiHead, error) {
	if heads < 1 || dModel%heads != 0 {
		return nil, fmt.Errorf("attention: d_model %d not divisible by %d heads", dModel, heads)
	}
	return NewMultiHead(dModel, dModel/heads, heads, dropout, tanhKeys, ActivationSoftmax, rng)
}

func gaussianQuery(dModel int, rng *rand.Rand) *tensor.Tensor {
	q := tensor.New(1, 1, dModel)
	for i := range q.Data {
		q.Data[i] = float32(rng.NormFloat64())
	}
	return q
}

func xavierQuery(dModel int, rng *rand.Rand) *tensor.Tensor {
	q := tensor.New(1, 1, dModel)
	nn.XavierUniform(q.Data, 1, dModel, rng)
	return q
}

// learnedQueryPooling serves v1, v2 and v5: a batch-independent learned query
// broadcast over the batch.
type learnedQueryPooling struct {
	variant string
	mh      *MultiHead
	query   *tensor.Tensor
}

func (p *learnedQueryPooling) Pool(ctx *nn.Context, x *tensor.Tensor) *tensor.Tensor {
	b := x.Shape[0]
	d := p.query.Shape[2]
	q := tensor.New(b, 1, d)
	for n := 0; n < b; n++ {
		copy(q.Data[n*d:(n+1)*d], p.query.Data)
	}
	return poolForward(ctx, p.mh, q, x)
}

func (p *learnedQueryPooling) Params(prefix string) []nn.Param {
	params := []nn.Param{{Name: prefix + ".query", Tensor: p.query}}
	return append(params, p.mh.Params(prefix+".attention")...)
}

// meanQueryPooling is v3: the query is recomputed per batch as the time-mean
// of the input.
type meanQueryPooling struct {
	mh *MultiHead
}

func (p *meanQueryPooling) Pool(ctx *nn.Context, x *tensor.Tensor) *tensor.Tensor {
	mean := tensor.MeanDim1(x)
	q := mean.Reshape(x.Shape[0], 1, x.Shape[2])
	return poolForward(ctx, p.mh, q, x)
}

func (p *meanQueryPooling) Params(prefix string) []nn.Param {
	return p.mh.Params(prefix + ".attention")
}

// projectedQueryPooling is v4: a learned linear map applied to the time-mean
// seed yields the query.
type projectedQueryPooling struct {
	mh   *MultiHead
	proj *nn.Linear
}

func (p *projectedQueryPooling) Pool(ctx *nn.Context, x *tensor.Tensor) *tensor.Tensor {
	seed := tensor.MeanDim1(x)
	q := p.proj.Forward(seed).Reshape(x.Shape[0], 1, x.Shape[2])
	return poolForward(ctx, p.mh, q, x)
}

func (p *projectedQueryPooling) Params(prefix string) []nn.Param {
	params := p.proj.Params(prefix + ".query_proj")
	return append(params, p.mh.Params(prefix+".attention")...)
}

// poolForward runs the attention with a single query position and restores
// the (batch, dModel) shape the block's squeeze may have collapsed.
func poolForward(ctx *nn.Context, mh *MultiHead, q, x *tensor.Tensor) *tensor.Tensor {
	out := mh.Forward(ctx, q, x, x, MaskNone)
	return out.Reshape(x.Shape[0], x.Shape[2])
}
