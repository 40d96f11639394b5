package model

import (
	"math/rand"
	"testing"

	"github.com/cardioml/ecgnet/internal/nn"
	"github.com/cardioml/ecgnet/internal/tensor"
)

func testGeometry(in, out, stride int, downSample string) blockGeometry {
	return blockGeometry{
		InChannels:  in,
		OutChannels: out,
		MidKernel:   3,
		LastKernel:  8,
		Stride:      stride,
		DownSample:  downSample,
		DropOut:     0.2,
		NormType:    NormBN,
		NormPos:     NormPosAll,
	}
}

func TestPreActivationBlockDownsamplesBothPaths(t *testing.T) {
	// The residual joins after both paths shrink by the stride, so the output
	// length is input length over stride for every downsampling strategy.
	for _, downSample := range []string{DownSampleConv, DownSampleMaxPool, DownSampleAvgPool} {
		for _, stride := range []int{2, 4} {
			rng := rand.New(rand.NewSource(7))
			g := testGeometry(6, 10, stride, downSample)
			g.LastKernel = stride + 6
			b, err := NewPreActivationBlock(g, true, rng)
			if err != nil {
				t.Fatalf("%s stride %d: %v", downSample, stride, err)
			}
			x := tensor.New(2, 6, 64)
			tensor.FillRand(x, 11)
			out := b.Forward(nn.Eval(), StageOutput{Out: x, Residual: x})
			wantLen := 64 / stride
			if out.Out.Shape[0] != 2 || out.Out.Shape[1] != 10 || out.Out.Shape[2] != wantLen {
				t.Fatalf("%s stride %d: output shape %v, want (2, 10, %d)", downSample, stride, out.Out.Shape, wantLen)
			}
			if out.Residual != out.Out {
				t.Fatalf("%s stride %d: joined output must seed the next residual", downSample, stride)
			}
		}
	}
}

func TestPreActivationBlockRequiresPair(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b, err := NewPreActivationBlock(testGeometry(4, 4, 2, DownSampleConv), true, rng)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for missing residual")
		}
	}()
	b.Forward(nn.Eval(), StageOutput{Out: tensor.New(1, 4, 32)})
}

func TestConvBlockSkipTogglesResidual(t *testing.T) {
	// Identical weights, with and without the skip join: same shape, and the
	// skip must change the values.
	x := tensor.New(1, 4, 32)
	tensor.FillRand(x, 5)

	withSkip, err := NewConvBlock(testGeometry(4, 4, 2, DownSampleConv), true, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}
	withoutSkip, err := NewConvBlock(testGeometry(4, 4, 2, DownSampleConv), false, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}

	a := withSkip.Forward(nn.Eval(), x.Clone())
	b := withoutSkip.Forward(nn.Eval(), x.Clone())
	if !a.ShapeEquals(b) {
		t.Fatalf("shapes diverge: %v vs %v", a.Shape, b.Shape)
	}
	if a.Shape[2] != 16 {
		t.Fatalf("expected halved length, got %v", a.Shape)
	}
	same := true
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("skip join had no effect on the output")
	}
}

func TestUnknownDownsamplingFailsConstruction(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := NewConvBlock(testGeometry(4, 4, 2, "stride"), true, rng); err == nil {
		t.Fatal("expected error for unknown downsampling strategy")
	}
	if _, err := NewPreActivationBlock(testGeometry(4, 4, 2, "stride"), true, rng); err == nil {
		t.Fatal("expected error for unknown downsampling strategy")
	}
}
