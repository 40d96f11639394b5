// Package attention implements scaled dot-product attention, the multi-head
// block built on it, and the contextual pooling family that collapses a
// sequence into a single vector via a self-derived query.
package attention

import (
	"fmt"
	"math"

	"github.com/cardioml/ecgnet/internal/nn"
	"github.com/cardioml/ecgnet/internal/tensor"
)

// Mask selects an additive score mask applied before normalisation.
type Mask string

const (
	// MaskNone applies no mask.
	MaskNone Mask = ""
	// MaskSubsequent blocks attention to positions after the query position
	// by setting their scores to -inf before normalisation.
	MaskSubsequent Mask = "subsequent"
)

// Score activations. Softmax is the default; the alternatives are only
// reachable through the v1 pooling variant.
const (
	ActivationSoftmax = "softmax"
	ActivationSigmoid = "sigmoid"
	ActivationTanh    = "tanh"
	ActivationReLU    = "relu"
)

func validActivation(name string) bool {
	switch name {
	case ActivationSoftmax, ActivationSigmoid, ActivationTanh, ActivationReLU:
		return true
	}
	return false
}

// ScaledDotProduct computes attention(Q, K, V) = act(Q*K^T / sqrt(dk)) * V
// over batched rank-3 operands. The head axis, if any, is expected to be
// folded into the batch dimension by the caller.
type ScaledDotProduct struct {
	DK         int
	Activation string
	Dropout    *nn.Dropout
}

// Forward computes the attention output (n, lq, dv). The normalised score
// matrix is retained on the context for introspection. Q and K must agree on
// the key-axis width and K and V on the sequence length; violations panic
// rather than broadcast.
func (s *ScaledDotProduct) Forward(ctx *nn.Context, q, k, v *tensor.Tensor, mask Mask) *tensor.Tensor {
	if q.Rank() != 3 || k.Rank() != 3 || v.Rank() != 3 {
		panic(fmt.Sprintf("attention: rank-3 operands required, got %v, %v, %v", q.Shape, k.Shape, v.Shape))
	}
	if q.Shape[2] != k.Shape[2] {
		panic(fmt.Sprintf("attention: query/key width mismatch %v vs %v", q.Shape, k.Shape))
	}
	if k.Shape[1] != v.Shape[1] || k.Shape[0] != v.Shape[0] || q.Shape[0] != k.Shape[0] {
		panic(fmt.Sprintf("attention: key/value shape mismatch %v vs %v", k.Shape, v.Shape))
	}

	scores := tensor.BMMTransposeB(q, k)
	tensor.Scale(scores, float32(1.0/math.Sqrt(float64(s.DK))))

	switch mask {
	case MaskNone:
	case MaskSubsequent:
		applySubsequentMask(scores)
	default:
		panic(fmt.Sprintf("attention: unsupported mask %q", mask))
	}

	switch s.Activation {
	case "", ActivationSoftmax:
		tensor.SoftmaxLastDim(scores)
	case ActivationSigmoid:
		tensor.SigmoidInPlace(scores)
	case ActivationTanh:
		tensor.TanhInPlace(scores)
	case ActivationReLU:
		tensor.ReLUInPlace(scores)
	default:
		panic(fmt.Sprintf("attention: unsupported activation %q", s.Activation))
	}

	if s.Dropout != nil {
		s.Dropout.Forward(ctx, scores)
	}
	ctx.AttnScores = scores

	return tensor.BMM(scores, v)
}

func applySubsequentMask(scores *tensor.Tensor) {
	negInf := float32(math.Inf(-1))
	b, lq, lk := scores.Shape[0], scores.Shape[1], scores.Shape[2]
	for n := 0; n < b; n++ {
		for i := 0; i < lq; i++ {
			row := scores.Data[(n*lq+i)*lk : (n*lq+i+1)*lk]
			for j := i + 1; j < lk; j++ {
				row[j] = negInf
			}
		}
	}
}
