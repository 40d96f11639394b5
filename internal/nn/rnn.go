package nn

import (
	"fmt"
	"math/rand"

	"github.com/cardioml/ecgnet/internal/tensor"
)

// BiGRU is a single-layer bidirectional gated recurrent unit operating on
// batch-first (batch, time, features) input. The two directions run
// independently and their hidden states are concatenated per timestep, so the
// output feature width is 2*Hidden.
//
// Gate layout follows the [reset, update, candidate] convention: the input and
// hidden projections produce 3*Hidden features, sliced per gate.
type BiGRU struct {
	Input  int
	Hidden int

	fwd gruDirection
	bwd gruDirection
}

type gruDirection struct {
	wih *tensor.Tensor // (input, 3*hidden)
	whh *tensor.Tensor // (hidden, 3*hidden)
	bih *tensor.Tensor // (3*hidden)
	bhh *tensor.Tensor // (3*hidden)
}

func newGRUDirection(input, hidden int, rng *rand.Rand) gruDirection {
	d := gruDirection{
		wih: tensor.New(input, 3*hidden),
		whh: tensor.New(hidden, 3*hidden),
		bih: tensor.New(3 * hidden),
		bhh: tensor.New(3 * hidden),
	}
	bound := kaimingBound(hidden)
	uniformInit(d.wih.Data, bound, rng)
	uniformInit(d.whh.Data, bound, rng)
	uniformInit(d.bih.Data, bound, rng)
	uniformInit(d.bhh.Data, bound, rng)
	return d
}

func NewBiGRU(input, hidden int, rng *rand.Rand) *BiGRU {
	if input < 1 || hidden < 1 {
		panic(fmt.Sprintf("nn: invalid BiGRU dims input=%d hidden=%d", input, hidden))
	}
	return &BiGRU{
		Input:  input,
		Hidden: hidden,
		fwd:    newGRUDirection(input, hidden, rng),
		bwd:    newGRUDirection(input, hidden, rng),
	}
}

// Forward runs both directions over the sequence and returns
// (batch, time, 2*Hidden). The initial hidden state is zero.
func (g *BiGRU) Forward(x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() != 3 || x.Shape[2] != g.Input {
		panic(fmt.Sprintf("nn: BiGRU expects (batch, time, %d), got shape %v", g.Input, x.Shape))
	}
	b, steps := x.Shape[0], x.Shape[1]
	h := g.Hidden
	out := tensor.New(b, steps, 2*h)

	g.fwd.run(x, out, b, steps, h, 0, false)
	g.bwd.run(x, out, b, steps, h, h, true)
	return out
}

// run executes one direction, writing its hidden states into out at the given
// feature offset. reverse walks the sequence back to front.
func (d *gruDirection) run(x, out *tensor.Tensor, b, steps, h, featOff int, reverse bool) {
	state := tensor.New(b, h)
	outWidth := out.Shape[2]

	// Input projections for the whole sequence in one matmul.
	flat := x.Reshape(b*steps, x.Shape[2])
	gi := tensor.MatMul(flat, d.wih) // (b*steps, 3h)

	for s := 0; s < steps; s++ {
		t := s
		if reverse {
			t = steps - 1 - s
		}
		gh := tensor.MatMul(state, d.whh) // (b, 3h)
		for n := 0; n < b; n++ {
			giRow := gi.Data[(n*steps+t)*3*h : (n*steps+t+1)*3*h]
			ghRow := gh.Data[n*3*h : (n+1)*3*h]
			hRow := state.Data[n*h : (n+1)*h]
			for i := 0; i < h; i++ {
				r := tensor.Sigmoid(giRow[i] + d.bih.Data[i] + ghRow[i] + d.bhh.Data[i])
				z := tensor.Sigmoid(giRow[h+i] + d.bih.Data[h+i] + ghRow[h+i] + d.bhh.Data[h+i])
				cand := tensor.Tanh(giRow[2*h+i] + d.bih.Data[2*h+i] + r*(ghRow[2*h+i]+d.bhh.Data[2*h+i]))
				hRow[i] = (1-z)*cand + z*hRow[i]
			}
			copy(out.Data[(n*steps+t)*outWidth+featOff:(n*steps+t)*outWidth+featOff+h], hRow)
		}
	}
}

func (g *BiGRU) Params(prefix string) []Param {
	return []Param{
		{Name: prefix + ".weight_ih_l0", Tensor: g.fwd.wih},
		{Name: prefix + ".weight_hh_l0", Tensor: g.fwd.whh},
		{Name: prefix + ".bias_ih_l0", Tensor: g.fwd.bih},
		{Name: prefix + ".bias_hh_l0", Tensor: g.fwd.bhh},
		{Name: prefix + ".weight_ih_l0_reverse", Tensor: g.bwd.wih},
		{Name: prefix + ".weight_hh_l0_reverse", Tensor: g.bwd.whh},
		{Name: prefix + ".bias_ih_l0_reverse", Tensor: g.bwd.bih},
		{Name: prefix + ".bias_hh_l0_reverse", Tensor: g.bwd.bhh},
	}
}
