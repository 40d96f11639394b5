package tensor

import (
	"math"
	"testing"
)

func TestSoftmaxRowsSumToOne(t *testing.T) {
	x := New(4, 6)
	FillRand(x, 3)
	Scale(x, 100) // spread the values so the test is not trivially uniform
	SoftmaxLastDim(x)
	for i := 0; i < 4; i++ {
		var sum float64
		for _, v := range x.Row(i) {
			if v < 0 {
				t.Fatalf("negative weight %f in row %d", v, i)
			}
			sum += float64(v)
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Fatalf("row %d sums to %f, want 1", i, sum)
		}
	}
}

func TestLogSoftmaxMatchesSoftmax(t *testing.T) {
	x := New(2, 5)
	FillRand(x, 9)
	ref := x.Clone()
	SoftmaxLastDim(ref)
	LogSoftmaxLastDim(x)
	for i := range x.Data {
		want := float32(math.Log(float64(ref.Data[i])))
		if math.Abs(float64(x.Data[i]-want)) > 1e-5 {
			t.Fatalf("mismatch at %d: got %f, want %f", i, x.Data[i], want)
		}
	}
}

func TestMeanDim1(t *testing.T) {
	x := FromSlice([]float32{
		1, 2,
		3, 4,
		5, 6,
	}, 1, 3, 2)
	got := MeanDim1(x)
	compareSlices(t, got.Data, []float32{3, 4}, 1e-6)
}

func TestLeakyReLU(t *testing.T) {
	x := FromSlice([]float32{-1, 0, 2}, 3)
	LeakyReLUInPlace(x, 0.3)
	compareSlices(t, x.Data, []float32{-0.3, 0, 2}, 1e-6)
}

func TestAddShapeMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for mismatched shapes")
		}
	}()
	Add(New(2, 3), New(3, 2))
}

func TestMatMulMatchesNaive(t *testing.T) {
	x := New(5, 7)
	w := New(7, 4)
	FillRand(x, 1)
	FillRand(w, 2)
	got := MatMul(x, w)
	want := make([]float32, 5*4)
	for i := 0; i < 5; i++ {
		for j := 0; j < 4; j++ {
			var sum float32
			for k := 0; k < 7; k++ {
				sum += x.Data[i*7+k] * w.Data[k*4+j]
			}
			want[i*4+j] = sum
		}
	}
	compareSlices(t, got.Data, want, 1e-5)
}

func TestBMMTransposeBMatchesBMM(t *testing.T) {
	a := New(3, 4, 6)
	b := New(3, 5, 6)
	FillRand(a, 4)
	FillRand(b, 5)
	got := BMMTransposeB(a, b)

	// Reference: materialise the transpose and use plain BMM.
	bt := New(3, 6, 5)
	for n := 0; n < 3; n++ {
		for i := 0; i < 5; i++ {
			for j := 0; j < 6; j++ {
				bt.Data[n*30+j*5+i] = b.Data[n*30+i*6+j]
			}
		}
	}
	want := BMM(a, bt)
	compareSlices(t, got.Data, want.Data, 1e-5)
}

func BenchmarkBMM(b *testing.B) {
	x := New(8, 64, 64)
	y := New(8, 64, 64)
	FillRand(x, 1)
	FillRand(y, 2)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = BMM(x, y)
	}
}
