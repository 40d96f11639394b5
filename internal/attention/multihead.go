package attention

import (
	"fmt"
	"math/rand"

	"github.com/cardioml/ecgnet/internal/nn"
	"github.com/cardioml/ecgnet/internal/tensor"
)

// MultiHead is a multi-head attention block over three (batch, len, dModel)
// sources. Each source is projected into heads*dHead space and the heads are
// folded into the batch axis so a single scaled dot-product call covers all
// of them at once.
//
// When tanhKeys is set the key projection is followed by a tanh. The model
// uses this when the feature-compression step ahead of the attention has been
// discarded: bounding the keys substitutes for the dropped transformation.
type MultiHead struct {
	heads    int
	dModel   int
	dQ       int // per-head query/key width
	dV       int // per-head value width
	tanhKeys bool

	wq   *nn.Linear
	wk   *nn.Linear
	wv   *nn.Linear
	wo   *nn.Linear
	attn *ScaledDotProduct
}

// NewMultiHead constructs the block. dHead is the per-head query/key/value
// width; activation selects the score normalisation (softmax when empty).
func NewMultiHead(dModel, dHead, heads int, dropout float32, tanhKeys bool, activation string, rng *rand.Rand) (*MultiHead, error) {
	if dModel < 1 || dHead < 1 || heads < 1 {
		return nil, fmt.Errorf("attention: invalid dimensions d_model=%d d_head=%d heads=%d", dModel, dHead, heads)
	}
	if activation != "" && !validActivation(activation) {
		return nil, fmt.Errorf("attention: unsupported activation function %q", activation)
	}
	var drop *nn.Dropout
	if dropout > 0 {
		drop = nn.NewDropout(dropout)
	}
	return &MultiHead{
		heads:    heads,
		dModel:   dModel,
		dQ:       dHead,
		dV:       dHead,
		tanhKeys: tanhKeys,
		wq:       nn.NewLinear(dModel, dHead*heads, rng),
		wk:       nn.NewLinear(dModel, dHead*heads, rng),
		wv:       nn.NewLinear(dModel, dHead*heads, rng),
		wo:       nn.NewLinear(dHead*heads, dModel, rng),
		attn: &ScaledDotProduct{
			DK:         dHead,
			Activation: activation,
			Dropout:    drop,
		},
	}, nil
}

// Forward projects the three sources, runs attention over all heads at once
// and maps the concatenated heads back to dModel. Trailing singleton
// dimensions are squeezed away, so for a single query position the result is
// rank 2; callers must handle the reduced rank.
func (m *MultiHead) Forward(ctx *nn.Context, query, key, value *tensor.Tensor, mask Mask) *tensor.Tensor {
	q := tensor.FoldHeads(m.wq.Forward(query), m.heads)
	k := m.wk.Forward(key)
	if m.tanhKeys {
		tensor.TanhInPlace(k)
	}
	kf := tensor.FoldHeads(k, m.heads)
	v := tensor.FoldHeads(m.wv.Forward(value), m.heads)

	heads := m.attn.Forward(ctx, q, kf, v, mask)
	concat := tensor.UnfoldHeads(heads, m.heads)
	return m.wo.Forward(concat).Squeeze()
}

func (m *MultiHead) Params(prefix string) []nn.Param {
	params := m.wq.Params(prefix + ".w_q")
	params = append(params, m.wk.Params(prefix+".w_k")...)
	params = append(params, m.wv.Params(prefix+".w_v")...)
	params = append(params, m.wo.Params(prefix+".w_o")...)
	return params
}
