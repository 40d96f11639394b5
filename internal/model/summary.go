package model

import (
	"fmt"
	"strings"

	"github.com/cardioml/ecgnet/internal/nn"
	"github.com/cardioml/ecgnet/internal/tensor"
)

// LayerInfo describes one stage boundary of a forward pass.
type LayerInfo struct {
	Name        string
	OutputShape []int
	ParamCount  int
}

// Summary runs a representative input through the model in eval mode and
// reports per-stage output shapes and parameter counts. Used for
// verification and the CLI summary command, not part of the forward path.
func (m *Model) Summary(batch, length int) ([]LayerInfo, error) {
	x := tensor.New(batch, m.cfg.InputChannels, length)
	tensor.FillRand(x, m.cfg.Seed)

	counts := m.stageParamCounts()
	var infos []LayerInfo
	_, err := m.forward(nn.Eval(), x, func(name string, out *tensor.Tensor) {
		infos = append(infos, LayerInfo{
			Name:        name,
			OutputShape: append([]int(nil), out.Shape...),
			ParamCount:  counts[name],
		})
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// stageParamCounts aggregates parameter counts by top-level stage name.
func (m *Model) stageParamCounts() map[string]int {
	counts := make(map[string]int)
	for _, p := range m.Params() {
		stage := p.Name
		if i := strings.IndexByte(stage, '.'); i >= 0 {
			stage = stage[:i]
		}
		// The pre-conv norm belongs to the pre_conv stage in the summary.
		if stage == "pre_norm" {
			stage = "pre_conv"
		}
		if stage == "head_norm" {
			stage = "fcn"
		}
		counts[stage] += len(p.Tensor.Data)
	}
	return counts
}

// FormatSummary renders the layer table the way the CLI prints it.
func FormatSummary(infos []LayerInfo, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-28s %-20s %12s\n", "Layer", "Output Shape", "Params")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 62))
	for _, info := range infos {
		shape := make([]string, len(info.OutputShape))
		for i, d := range info.OutputShape {
			shape[i] = fmt.Sprintf("%d", d)
		}
		fmt.Fprintf(&b, "%-28s %-20s %12d\n", info.Name, "("+strings.Join(shape, ", ")+")", info.ParamCount)
	}
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 62))
	fmt.Fprintf(&b, "%-28s %33d\n", "Total params", total)
	return b.String()
}
