package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/cardioml/ecgnet/internal/logger"
	"github.com/cardioml/ecgnet/internal/model"
)

func initCmd() *cli.Command {
	var (
		out  string
		seed int64
	)

	return &cli.Command{
		Name:  "init",
		Usage: "Initialise a model and write a checkpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to model architecture yaml",
				Destination: &modelConfigPath,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "checkpoint output path",
				Value:       "ecgnet.ckpt.json",
				Destination: &out,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "initialisation seed",
				Value:       1,
				Destination: &seed,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg := model.DefaultConfig()
			if modelConfigPath != "" {
				var err error
				if cfg, err = model.LoadConfigFile(modelConfigPath); err != nil {
					return err
				}
			}
			if cmd.IsSet("seed") {
				cfg.Seed = seed
			}
			m, err := model.New(cfg)
			if err != nil {
				return err
			}
			if err := m.Save(out); err != nil {
				return err
			}
			log.Info("wrote checkpoint", "path", out, "params", m.ParamCount(), "seed", cfg.Seed)
			return nil
		},
	}
}
