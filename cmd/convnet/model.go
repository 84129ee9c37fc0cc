package main

import (
	"github.com/born-ml/convnet/internal/config"
	"github.com/born-ml/convnet/internal/geometry"
)

// defaultModel returns a LeNet style model for channels×rows×cols inputs:
// conv 5×5 → max pool 2 → conv 5×5 → max pool 2 → fc 500 → ReLU → fc.
// Inputs too small for two convolutions get a single conv/pool stage.
func defaultModel(channels, rows, cols, classes int) *config.Model {
	learn := geometry.LearnGeometry{
		BiasLearningRate:        0.001,
		BiasMomentRate:          0.9,
		BiasLearningRateScale:   1,
		WeightLearningRate:      0.001,
		WeightMomentRate:        0.9,
		WeightLearningRateScale: 1,
		WeightDecay:             0.0005,
	}
	pool := config.Layer{
		Type:   "pool",
		Method: "Max",
		Window: geometry.Window(2, 2),
		Stride: &geometry.StrideGeometry{StepRow: 2, StepCol: 2},
	}
	conv := func(weights, chns int) config.Layer {
		return config.Layer{
			Type:   "conv",
			Weight: geometry.WeightGeometry{NumWeights: weights, WeightChns: chns, Width: 5, Height: 5, InitWeightScale: 0.01},
			Learn:  &learn,
		}
	}

	m := &config.Model{}
	h, w, chns := rows, cols, channels
	for stage, weights := range []int{20, 50} {
		if h < 5+1 || w < 5+1 {
			break
		}
		c := conv(weights, chns)
		c.SkipInputGrad = stage == 0
		m.Layers = append(m.Layers, c, pool)
		h, w, chns = (h-4)/2, (w-4)/2, weights
	}
	m.Layers = append(m.Layers,
		config.Layer{Type: "concat"},
		config.Layer{
			Type:   "fc",
			Weight: geometry.WeightGeometry{NumWeights: 500, WeightChns: chns, Width: w, Height: h, InitWeightScale: 0.01},
			Learn:  &learn,
		},
		config.Layer{Type: "activation", Name: "ReLU"},
		config.Layer{
			Type:   "fc",
			Weight: geometry.WeightGeometry{NumWeights: classes, WeightChns: 500, InitWeightScale: 0.01},
			Learn:  &learn,
		},
		config.Layer{Type: "loss"},
	)
	return m
}
