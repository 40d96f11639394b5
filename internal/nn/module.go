// Package nn provides the layer primitives the classifier is assembled from:
// linear maps, 1D convolutions and poolings, batch/instance normalisation, a
// bidirectional GRU and inverted dropout. Layers hold their parameters as
// tensors and expose them by name for checkpointing and counting.
package nn

import (
	"math/rand"

	"github.com/cardioml/ecgnet/internal/tensor"
)

// Param is a named learned parameter.
type Param struct {
	Name   string
	Tensor *tensor.Tensor
}

// ParamSource is implemented by every layer that owns learned parameters.
type ParamSource interface {
	Params(prefix string) []Param
}

// CountParams sums the element counts of all parameters of a source.
func CountParams(src ParamSource) int {
	var n int
	for _, p := range src.Params("") {
		n += len(p.Tensor.Data)
	}
	return n
}

// Context carries the per-invocation forward state: the train/eval mode flag,
// the RNG used by dropout, and the last normalised attention score matrix.
// Keeping this on the call instead of the module keeps forward passes
// reentrant under concurrent inference requests.
type Context struct {
	Training bool

	// AttnScores is set by the attention core on every invocation to the
	// normalised score matrix (batch*heads, query_len, key_len). Retained for
	// introspection only; the forward computation never reads it back.
	AttnScores *tensor.Tensor

	rng *rand.Rand
}

// NewContext returns a forward context. The seed only matters in training
// mode, where it drives the dropout masks.
func NewContext(training bool, seed int64) *Context {
	return &Context{
		Training: training,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Eval returns an inference-mode context. Dropout is a no-op under it.
func Eval() *Context {
	return NewContext(false, 0)
}

func (c *Context) randFloat() float32 {
	return c.rng.Float32()
}
