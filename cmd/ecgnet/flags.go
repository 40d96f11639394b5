package main

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/cardioml/ecgnet/internal/model"
)

// Shared model source flags: a checkpoint restores architecture and weights,
// a yaml config constructs a freshly initialised model.
var (
	modelConfigPath string
	checkpointPath  string
)

func modelSourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to model architecture yaml",
			Destination: &modelConfigPath,
		},
		&cli.StringFlag{
			Name:        "checkpoint",
			Aliases:     []string{"k"},
			Usage:       "path to checkpoint file",
			Destination: &checkpointPath,
		},
	}
}

// loadModel resolves the model source flags. The checkpoint wins when both
// are set, since it embeds its own architecture.
func loadModel() (*model.Model, error) {
	if checkpointPath != "" {
		m, err := model.Load(checkpointPath)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint %s: %w", checkpointPath, err)
		}
		return m, nil
	}
	cfg := model.DefaultConfig()
	if modelConfigPath != "" {
		var err error
		if cfg, err = model.LoadConfigFile(modelConfigPath); err != nil {
			return nil, err
		}
	}
	return model.New(cfg)
}
