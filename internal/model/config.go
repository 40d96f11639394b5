// Package model assembles the ECG classifier: a residual 1D convolution
// stack, a bidirectional GRU encoder, contextual multi-head attention pooling
// and a linear classification head.
package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Downsampling strategies for the skip path of a residual block.
const (
	DownSampleConv    = "conv"
	DownSampleMaxPool = "max_pool"
	DownSampleAvgPool = "avg_pool"
)

// Skip-connection placement policies.
const (
	PosSkipAll      = "all"
	PosSkipNotLast  = "not_last"
	PosSkipNotFirst = "not_first"
)

// Normalisation types.
const (
	NormBN = "BN"
	NormIN = "IN"
)

// Normalisation placement within a block.
const (
	NormPosAll   = "all"
	NormPosFirst = "first"
	NormPosLast  = "last"
)

// Config is the construction-time surface of the model. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	InputChannels int `yaml:"input_channels"`
	NumClasses    int `yaml:"num_classes"`

	ApplyFinalActivation bool `yaml:"apply_final_activation"`
	MultiLabelTraining   bool `yaml:"multi_label_training"`

	DropOutFirstConvBlocks  float32 `yaml:"drop_out_first_conv_blocks"`
	DropOutSecondConvBlocks float32 `yaml:"drop_out_second_conv_blocks"`
	DropOutGRU              float32 `yaml:"drop_out_gru"`
	DropOutLastBN           float32 `yaml:"dropout_last_bn"`

	MidKernelSizeFirstConvBlocks   int `yaml:"mid_kernel_size_first_conv_blocks"`
	MidKernelSizeSecondConvBlocks  int `yaml:"mid_kernel_size_second_conv_blocks"`
	LastKernelSizeFirstConvBlocks  int `yaml:"last_kernel_size_first_conv_blocks"`
	LastKernelSizeSecondConvBlocks int `yaml:"last_kernel_size_second_conv_blocks"`
	StrideFirstConvBlocks          int `yaml:"stride_first_conv_blocks"`
	StrideSecondConvBlocks         int `yaml:"stride_second_conv_blocks"`

	DownSample   string `yaml:"down_sample"`
	VaryChannels bool   `yaml:"vary_channels"`
	PosSkip      string `yaml:"pos_skip"`

	NormType      string `yaml:"norm_type"`
	NormPos       string `yaml:"norm_pos"`
	NormBeforeAct bool   `yaml:"norm_before_act"`

	UsePreActivationDesign bool `yaml:"use_pre_activation_design"`
	UsePreConv             bool `yaml:"use_pre_conv"`
	PreConvKernel          int  `yaml:"pre_conv_kernel"`

	GRUUnits int `yaml:"gru_units"`

	DropoutAttention    float32 `yaml:"dropout_attention"`
	Heads               int     `yaml:"heads"`
	DiscardFCBeforeMH   bool    `yaml:"discard_fc_before_mh"`
	UseReducedHeadDims  int     `yaml:"use_reduced_head_dims"`
	AttentionActivation string  `yaml:"attention_activation_function"`
	AttentionType       string  `yaml:"attention_type"`

	// Seed drives the parameter initialisation.
	Seed int64 `yaml:"seed"`
}

// DefaultConfig mirrors the reference hyperparameter set.
func DefaultConfig() Config {
	return Config{
		InputChannels:                  12,
		NumClasses:                     9,
		MultiLabelTraining:             true,
		DropOutFirstConvBlocks:         0.2,
		DropOutSecondConvBlocks:        0.2,
		DropOutGRU:                     0.2,
		DropOutLastBN:                  0.2,
		MidKernelSizeFirstConvBlocks:   3,
		MidKernelSizeSecondConvBlocks:  3,
		LastKernelSizeFirstConvBlocks:  24,
		LastKernelSizeSecondConvBlocks: 48,
		StrideFirstConvBlocks:          2,
		StrideSecondConvBlocks:         2,
		DownSample:                     DownSampleConv,
		VaryChannels:                   true,
		PosSkip:                        PosSkipNotLast,
		NormType:                       NormBN,
		NormPos:                        NormPosAll,
		NormBeforeAct:                  true,
		UsePreActivationDesign:         true,
		UsePreConv:                     true,
		PreConvKernel:                  16,
		GRUUnits:                       12,
		DropoutAttention:               0.2,
		Heads:                          3,
		AttentionType:                  "v2",
		Seed:                           1,
	}
}

// Validate checks every enumeration and option combination. The model either
// constructs fully or fails here; nothing is silently defaulted.
func (c *Config) Validate() error {
	switch c.DownSample {
	case DownSampleConv, DownSampleMaxPool, DownSampleAvgPool:
	default:
		return fmt.Errorf("model: downsampling must be %s, %s or %s, got %q",
			DownSampleConv, DownSampleMaxPool, DownSampleAvgPool, c.DownSample)
	}
	switch c.PosSkip {
	case PosSkipAll, PosSkipNotLast, PosSkipNotFirst:
	default:
		return fmt.Errorf("model: pos_skip must be %s, %s or %s, got %q",
			PosSkipAll, PosSkipNotLast, PosSkipNotFirst, c.PosSkip)
	}
	switch c.NormType {
	case NormBN, NormIN:
	default:
		return fmt.Errorf("model: norm_type must be %s or %s, got %q", NormBN, NormIN, c.NormType)
	}
	switch c.NormPos {
	case NormPosAll, NormPosFirst, NormPosLast:
	default:
		return fmt.Errorf("model: norm_pos must be %s, %s or %s, got %q",
			NormPosAll, NormPosFirst, NormPosLast, c.NormPos)
	}

	if c.UseReducedHeadDims != 0 && c.AttentionType != "v1" {
		return fmt.Errorf("model: use_reduced_head_dims requires attention_type=v1, got %q", c.AttentionType)
	}
	if c.AttentionActivation != "" && c.AttentionType != "v1" {
		return fmt.Errorf("model: attention_activation_function requires attention_type=v1, got %q", c.AttentionType)
	}
	if c.UseReducedHeadDims != 0 && (2*c.GRUUnits)%c.Heads != 0 {
		return fmt.Errorf("model: twice the GRU units (d_model=%d) must be divisible by %d heads", 2*c.GRUUnits, c.Heads)
	}

	if c.UsePreActivationDesign {
		if c.PosSkip == PosSkipNotFirst {
			return fmt.Errorf("model: pos_skip=%s is not valid with the pre-activation design; choose %s or %s",
				PosSkipNotFirst, PosSkipAll, PosSkipNotLast)
		}
	} else if !c.NormBeforeAct {
		return fmt.Errorf("model: norm after activation requires the pre-activation design")
	}

	if c.MidKernelSizeFirstConvBlocks%2 == 0 || c.MidKernelSizeSecondConvBlocks%2 == 0 {
		return fmt.Errorf("model: mid kernel sizes must be odd to preserve sequence length")
	}
	if (c.LastKernelSizeFirstConvBlocks-c.StrideFirstConvBlocks)%2 != 0 ||
		(c.LastKernelSizeSecondConvBlocks-c.StrideSecondConvBlocks)%2 != 0 {
		return fmt.Errorf("model: last kernel size and stride must differ by an even amount so the main and skip paths align")
	}

	if c.InputChannels < 1 || c.NumClasses < 1 || c.GRUUnits < 1 || c.Heads < 1 {
		return fmt.Errorf("model: channels, classes, gru_units and heads must be positive")
	}
	return nil
}

// channelLadder returns the output channels of the five conv blocks.
func (c *Config) channelLadder() [5]int {
	if c.VaryChannels {
		return [5]int{24, 48, 48, 24, 12}
	}
	return [5]int{
		c.InputChannels, c.InputChannels, c.InputChannels,
		c.InputChannels, c.InputChannels,
	}
}

// LoadConfigFile reads a yaml config, applied over DefaultConfig.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("model: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("model: parse config: %w", err)
	}
	return cfg, nil
}
