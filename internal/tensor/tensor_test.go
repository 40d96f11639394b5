package tensor

import (
	"math"
	"testing"
)

func compareSlices(t *testing.T, got, want []float32, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			t.Fatalf("mismatch at %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestPermute021RoundTrip(t *testing.T) {
	x := New(2, 3, 4)
	FillRand(x, 7)
	y := x.Permute021()
	if y.Shape[0] != 2 || y.Shape[1] != 4 || y.Shape[2] != 3 {
		t.Fatalf("unexpected permuted shape %v", y.Shape)
	}
	z := y.Permute021()
	compareSlices(t, z.Data, x.Data, 0)
}

func TestFoldUnfoldHeadsIsIdentity(t *testing.T) {
	const heads = 4
	x := New(3, 5, 8*heads)
	FillRand(x, 11)
	folded := FoldHeads(x, heads)
	if folded.Shape[0] != heads*3 || folded.Shape[1] != 5 || folded.Shape[2] != 8 {
		t.Fatalf("unexpected folded shape %v", folded.Shape)
	}
	back := UnfoldHeads(folded, heads)
	if !back.ShapeEquals(x) {
		t.Fatalf("unfold shape %v, want %v", back.Shape, x.Shape)
	}
	compareSlices(t, back.Data, x.Data, 0)
}

func TestFoldHeadsRejectsIndivisible(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for indivisible feature dim")
		}
	}()
	FoldHeads(New(1, 2, 7), 3)
}

func TestSqueezeDropsSingletons(t *testing.T) {
	x := New(1, 5, 1)
	got := x.Squeeze()
	if len(got.Shape) != 1 || got.Shape[0] != 5 {
		t.Fatalf("unexpected squeezed shape %v", got.Shape)
	}
}
