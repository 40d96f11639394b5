package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/cardioml/ecgnet/internal/model"
)

func summaryCmd() *cli.Command {
	var (
		batch  int64
		length int64
	)

	return &cli.Command{
		Name:  "summary",
		Usage: "Print per-layer output shapes and parameter counts",
		Flags: append(modelSourceFlags(),
			&cli.Int64Flag{
				Name:        "batch",
				Usage:       "batch size for the shape trace",
				Value:       2,
				Destination: &batch,
			},
			&cli.Int64Flag{
				Name:        "length",
				Aliases:     []string{"l"},
				Usage:       "input length in samples",
				Value:       72000,
				Destination: &length,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, LoadConfig())
			m, err := loadModel()
			if err != nil {
				return err
			}
			infos, err := m.Summary(int(batch), int(length))
			if err != nil {
				return err
			}
			fmt.Print(model.FormatSummary(infos, m.ParamCount()))
			return nil
		},
	}
}
