package model

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

const checkpointFormat = "ecgnet-checkpoint-v1"

type checkpointParam struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

type checkpointFile struct {
	Format string                     `json:"format"`
	Config Config                     `json:"config"`
	Params map[string]checkpointParam `json:"params"`
}

// Save writes the configuration and every parameter to path. The checkpoint
// embeds the config, so Load can reconstruct the model without extra input.
func (m *Model) Save(path string) error {
	ckpt := checkpointFile{
		Format: checkpointFormat,
		Config: m.cfg,
		Params: make(map[string]checkpointParam),
	}
	for _, p := range m.Params() {
		ckpt.Params[p.Name] = checkpointParam{
			Shape: p.Tensor.Shape,
			Data:  p.Tensor.Data,
		}
	}
	data, err := json.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("model: encode checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("model: write checkpoint: %w", err)
	}
	return nil
}

// Load reconstructs a model from a checkpoint written by Save. Every stored
// parameter must match the freshly constructed model's name and shape.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read checkpoint: %w", err)
	}
	var ckpt checkpointFile
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("model: decode checkpoint: %w", err)
	}
	if ckpt.Format != checkpointFormat {
		return nil, fmt.Errorf("model: unsupported checkpoint format %q", ckpt.Format)
	}

	m, err := New(ckpt.Config)
	if err != nil {
		return nil, err
	}
	for _, p := range m.Params() {
		stored, ok := ckpt.Params[p.Name]
		if !ok {
			return nil, fmt.Errorf("model: checkpoint missing parameter %q", p.Name)
		}
		if len(stored.Data) != len(p.Tensor.Data) {
			return nil, fmt.Errorf("model: parameter %q has %d elements, checkpoint holds %d",
				p.Name, len(p.Tensor.Data), len(stored.Data))
		}
		copy(p.Tensor.Data, stored.Data)
	}
	return m, nil
}
