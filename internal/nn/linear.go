package nn

import (
	"fmt"
	"math/rand"

	"github.com/cardioml/ecgnet/internal/tensor"
)

// Linear is a learned affine map y = x*W + b. W is stored (in, out) so the
// forward pass is a single row-major matmul.
type Linear struct {
	In, Out int
	W       *tensor.Tensor
	B       *tensor.Tensor
}

// NewLinear constructs a linear layer with U(-1/sqrt(in), 1/sqrt(in)) init
// for both weight and bias.
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		In:  in,
		Out: out,
		W:   tensor.New(in, out),
		B:   tensor.New(out),
	}
	bound := kaimingBound(in)
	uniformInit(l.W.Data, bound, rng)
	uniformInit(l.B.Data, bound, rng)
	return l
}

// Forward applies the layer to a rank-2 (n, in) or rank-3 (b, l, in) input,
// preserving the leading dimensions.
func (l *Linear) Forward(x *tensor.Tensor) *tensor.Tensor {
	last := x.Shape[len(x.Shape)-1]
	if last != l.In {
		panic(fmt.Sprintf("nn: linear expects %d input features, got shape %v", l.In, x.Shape))
	}
	switch x.Rank() {
	case 2:
		out := tensor.MatMul(x, l.W)
		l.addBias(out)
		return out
	case 3:
		b, seq := x.Shape[0], x.Shape[1]
		flat := x.Reshape(b*seq, l.In)
		out := tensor.MatMul(flat, l.W)
		l.addBias(out)
		return out.Reshape(b, seq, l.Out)
	default:
		panic(fmt.Sprintf("nn: linear expects rank 2 or 3 input, got shape %v", x.Shape))
	}
}

func (l *Linear) addBias(out *tensor.Tensor) {
	n := l.Out
	for off := 0; off < len(out.Data); off += n {
		row := out.Data[off : off+n]
		for i := range row {
			row[i] += l.B.Data[i]
		}
	}
}

func (l *Linear) Params(prefix string) []Param {
	return []Param{
		{Name: prefix + ".weight", Tensor: l.W},
		{Name: prefix + ".bias", Tensor: l.B},
	}
}
