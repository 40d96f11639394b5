package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/cardioml/ecgnet/internal/logger"
	"github.com/cardioml/ecgnet/internal/nn"
	"github.com/cardioml/ecgnet/internal/tensor"
)

// inferInput is the on-disk record format: one signal as channels x samples.
type inferInput struct {
	Signal [][]float32 `json:"signal"`
}

type inferOutput struct {
	Probabilities []float32 `json:"probabilities"`
	Logits        []float32 `json:"logits,omitempty"`
}

func inferCmd() *cli.Command {
	var (
		inputPath  string
		withLogits bool
	)

	return &cli.Command{
		Name:  "infer",
		Usage: "Classify a signal from a JSON file",
		Flags: append(modelSourceFlags(),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "path to signal JSON ({\"signal\": [[...], ...]})",
				Required:    true,
				Destination: &inputPath,
			},
			&cli.BoolFlag{
				Name:        "logits",
				Usage:       "include raw logits in the output",
				Destination: &withLogits,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, LoadConfig())

			m, err := loadModel()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			var in inferInput
			if err := json.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("parse input: %w", err)
			}

			cfg := m.Config()
			if len(in.Signal) != cfg.InputChannels {
				return fmt.Errorf("signal must have %d channels, got %d", cfg.InputChannels, len(in.Signal))
			}
			length := len(in.Signal[0])
			for i, ch := range in.Signal {
				if len(ch) != length {
					return fmt.Errorf("channel %d has %d samples, channel 0 has %d", i, len(ch), length)
				}
			}

			x := tensor.New(1, cfg.InputChannels, length)
			for ch, samples := range in.Signal {
				copy(x.Data[ch*length:(ch+1)*length], samples)
			}

			log.Debug("running inference", "channels", cfg.InputChannels, "samples", length)
			out, err := m.Forward(nn.Eval(), x)
			if err != nil {
				return err
			}

			result := inferOutput{}
			if withLogits && !cfg.ApplyFinalActivation {
				result.Logits = append([]float32(nil), out.Data...)
			}
			if !cfg.ApplyFinalActivation {
				tensor.SigmoidInPlace(out)
			}
			result.Probabilities = append([]float32(nil), out.Data...)

			enc := json.NewEncoder(os.Stdout)
			return enc.Encode(result)
		},
	}
}
