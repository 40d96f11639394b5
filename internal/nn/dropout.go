package nn

import (
	"fmt"

	"github.com/cardioml/ecgnet/internal/tensor"
)

// Dropout zeroes elements with probability P and rescales the survivors by
// 1/(1-P) (inverted dropout). It is a no-op in eval mode.
type Dropout struct {
	P float32
}

func NewDropout(p float32) *Dropout {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("nn: dropout probability %f out of range [0, 1)", p))
	}
	return &Dropout{P: p}
}

// Forward mutates x in place and returns it.
func (d *Dropout) Forward(ctx *Context, x *tensor.Tensor) *tensor.Tensor {
	if !ctx.Training || d.P == 0 {
		return x
	}
	scale := 1.0 / (1.0 - d.P)
	for i := range x.Data {
		if ctx.randFloat() < d.P {
			x.Data[i] = 0
		} else {
			x.Data[i] *= scale
		}
	}
	return x
}
