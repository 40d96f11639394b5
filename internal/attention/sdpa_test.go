package attention

import (
	"math"
	"testing"

	"github.com/cardioml/ecgnet/internal/nn"
	"github.com/cardioml/ecgnet/internal/tensor"
)

func TestScaledDotProductShapeAndWeights(t *testing.T) {
	q := tensor.New(3, 2, 5)
	k := tensor.New(3, 7, 5)
	v := tensor.New(3, 7, 4)
	tensor.FillRand(q, 1)
	tensor.FillRand(k, 2)
	tensor.FillRand(v, 3)

	ctx := nn.Eval()
	sdpa := &ScaledDotProduct{DK: 5}
	out := sdpa.Forward(ctx, q, k, v, MaskNone)
	if out.Shape[0] != 3 || out.Shape[1] != 2 || out.Shape[2] != 4 {
		t.Fatalf("unexpected output shape %v", out.Shape)
	}

	scores := ctx.AttnScores
	if scores == nil {
		t.Fatal("scores not retained on context")
	}
	if scores.Shape[0] != 3 || scores.Shape[1] != 2 || scores.Shape[2] != 7 {
		t.Fatalf("unexpected score shape %v", scores.Shape)
	}
	for off := 0; off < len(scores.Data); off += 7 {
		var sum float64
		for _, w := range scores.Data[off : off+7] {
			if w < 0 {
				t.Fatalf("negative attention weight %f", w)
			}
			sum += float64(w)
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Fatalf("weight row sums to %f, want 1", sum)
		}
	}
}

func TestScaledDotProductSubsequentMask(t *testing.T) {
	q := tensor.New(1, 4, 3)
	k := tensor.New(1, 4, 3)
	v := tensor.New(1, 4, 3)
	tensor.FillRand(q, 4)
	tensor.FillRand(k, 5)
	tensor.FillRand(v, 6)

	ctx := nn.Eval()
	sdpa := &ScaledDotProduct{DK: 3}
	sdpa.Forward(ctx, q, k, v, MaskSubsequent)
	scores := ctx.AttnScores
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if scores.Data[i*4+j] != 0 {
				t.Fatalf("masked position (%d,%d) has weight %f", i, j, scores.Data[i*4+j])
			}
		}
	}
}

func TestScaledDotProductKeyWidthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for query/key width mismatch")
		}
	}()
	sdpa := &ScaledDotProduct{DK: 4}
	sdpa.Forward(nn.Eval(), tensor.New(1, 2, 4), tensor.New(1, 3, 5), tensor.New(1, 3, 4), MaskNone)
}

func TestScaledDotProductMatchesNaive(t *testing.T) {
	q := tensor.New(1, 1, 2)
	k := tensor.New(1, 2, 2)
	v := tensor.New(1, 2, 1)
	q.Data = []float32{1, 0}
	k.Data = []float32{1, 0, 0, 1}
	v.Data = []float32{10, 20}

	ctx := nn.Eval()
	sdpa := &ScaledDotProduct{DK: 2}
	out := sdpa.Forward(ctx, q, k, v, MaskNone)

	// scores = [1/sqrt2, 0] -> softmax -> weighted sum of v.
	s := 1.0 / math.Sqrt2
	w0 := math.Exp(s) / (math.Exp(s) + 1)
	want := w0*10 + (1-w0)*20
	if math.Abs(float64(out.Data[0])-want) > 1e-5 {
		t.Fatalf("got %f, want %f", out.Data[0], want)
	}
}
