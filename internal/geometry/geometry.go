// Package geometry holds the plain value descriptors consumed by every layer:
// kernel (weight) geometry, stride, padding and learning parameters.
package geometry

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry is wrapped by every validation failure in this package.
var ErrInvalidGeometry = errors.New("invalid geometry")

// WeightGeometry describes the learnable kernel of a layer.
//
// For convolution, NumWeights is the number of output channels and WeightChns
// the number of input channels seen by one group. For a fully-connected layer
// NumWeights is the number of output units and WeightChns the input width,
// with Width = Height = 1. Pooling uses only Width and Height.
type WeightGeometry struct {
	NumGroups       int     `yaml:"groups"`
	NumWeights      int     `yaml:"weights"`
	WeightChns      int     `yaml:"channels"`
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	InitWeightScale float32 `yaml:"init_scale"`
}

// Window returns a geometry that only carries a window size.
func Window(width, height int) WeightGeometry {
	return WeightGeometry{NumGroups: 1, NumWeights: 1, WeightChns: 1, Width: width, Height: height}
}

// KernelSize is the length of one flattened kernel: WeightChns*Height*Width.
func (w WeightGeometry) KernelSize() int {
	return w.WeightChns * w.Height * w.Width
}

// Groups returns NumGroups, treating 0 as a single group.
func (w WeightGeometry) Groups() int {
	if w.NumGroups <= 0 {
		return 1
	}
	return w.NumGroups
}

// WeightsPerGroup is NumWeights / Groups().
func (w WeightGeometry) WeightsPerGroup() int {
	return w.NumWeights / w.Groups()
}

// ValidateWindow checks only the window size.
func (w WeightGeometry) ValidateWindow() error {
	if w.Width <= 0 || w.Height <= 0 {
		return fmt.Errorf("%w: window %dx%d must be positive", ErrInvalidGeometry, w.Height, w.Width)
	}
	return nil
}

// Validate checks the full kernel invariants.
func (w WeightGeometry) Validate() error {
	if err := w.ValidateWindow(); err != nil {
		return err
	}
	if w.NumGroups < 0 {
		return fmt.Errorf("%w: negative group count %d", ErrInvalidGeometry, w.NumGroups)
	}
	if w.NumWeights <= 0 || w.WeightChns <= 0 {
		return fmt.Errorf("%w: weights=%d channels=%d must be positive", ErrInvalidGeometry, w.NumWeights, w.WeightChns)
	}
	if w.NumWeights%w.Groups() != 0 {
		return fmt.Errorf("%w: %d weights not divisible into %d groups", ErrInvalidGeometry, w.NumWeights, w.Groups())
	}
	return nil
}

// StrideGeometry is the window step along rows and columns.
type StrideGeometry struct {
	StepRow int `yaml:"row"`
	StepCol int `yaml:"col"`
}

// UnitStride is a step of one in both directions.
func UnitStride() StrideGeometry {
	return StrideGeometry{StepRow: 1, StepCol: 1}
}

// Validate checks that both steps are positive.
func (s StrideGeometry) Validate() error {
	if s.StepRow <= 0 || s.StepCol <= 0 {
		return fmt.Errorf("%w: stride %dx%d must be positive", ErrInvalidGeometry, s.StepRow, s.StepCol)
	}
	return nil
}

// PadGeometry is the zero padding added around a feature map.
type PadGeometry struct {
	Top    int `yaml:"top"`
	Left   int `yaml:"left"`
	Bottom int `yaml:"bottom"`
	Right  int `yaml:"right"`
}

// Uniform pads every side by p.
func Uniform(p int) PadGeometry {
	return PadGeometry{Top: p, Left: p, Bottom: p, Right: p}
}

// Validate checks that no side is negative.
func (p PadGeometry) Validate() error {
	if p.Top < 0 || p.Left < 0 || p.Bottom < 0 || p.Right < 0 {
		return fmt.Errorf("%w: padding %+v has a negative side", ErrInvalidGeometry, p)
	}
	return nil
}

// OutputSize returns the number of window positions along each axis:
// (dim + padBefore + padAfter - win)/stride + 1, truncated.
func OutputSize(rows, cols, winH, winW int, stride StrideGeometry, pad PadGeometry) (int, int, error) {
	if err := stride.Validate(); err != nil {
		return 0, 0, err
	}
	if err := pad.Validate(); err != nil {
		return 0, 0, err
	}
	if winH <= 0 || winW <= 0 {
		return 0, 0, fmt.Errorf("%w: window %dx%d must be positive", ErrInvalidGeometry, winH, winW)
	}
	spanRows := rows + pad.Top + pad.Bottom
	spanCols := cols + pad.Left + pad.Right
	if rows <= 0 || cols <= 0 || spanRows < winH || spanCols < winW {
		return 0, 0, fmt.Errorf("%w: window %dx%d does not fit padded input %dx%d",
			ErrInvalidGeometry, winH, winW, spanRows, spanCols)
	}
	return (spanRows-winH)/stride.StepRow + 1, (spanCols-winW)/stride.StepCol + 1, nil
}

// LearnGeometry holds momentum-SGD hyper parameters. WeightDecay < 0
// disables decay.
type LearnGeometry struct {
	BiasLearningRate        float32 `yaml:"bias_lr"`
	BiasMomentRate          float32 `yaml:"bias_momentum"`
	BiasLearningRateScale   float32 `yaml:"bias_lr_scale"`
	WeightLearningRate      float32 `yaml:"weight_lr"`
	WeightMomentRate        float32 `yaml:"weight_momentum"`
	WeightLearningRateScale float32 `yaml:"weight_lr_scale"`
	WeightDecay             float32 `yaml:"weight_decay"`
}

// DefaultLearnGeometry returns the stock hyper parameters.
func DefaultLearnGeometry() LearnGeometry {
	return LearnGeometry{
		BiasLearningRate:        0.01,
		BiasMomentRate:          0.95,
		BiasLearningRateScale:   0.1,
		WeightLearningRate:      0.01,
		WeightMomentRate:        0.95,
		WeightLearningRateScale: 0.01,
		WeightDecay:             0.005,
	}
}

// Validate rejects negative learning and momentum rates.
func (l LearnGeometry) Validate() error {
	if l.BiasLearningRate < 0 || l.WeightLearningRate < 0 {
		return fmt.Errorf("%w: negative learning rate", ErrInvalidGeometry)
	}
	if l.BiasMomentRate < 0 || l.WeightMomentRate < 0 {
		return fmt.Errorf("%w: negative momentum rate", ErrInvalidGeometry)
	}
	return nil
}

// Decay returns the effective weight decay (0 when disabled).
func (l LearnGeometry) Decay() float32 {
	if l.WeightDecay < 0 {
		return 0
	}
	return l.WeightDecay
}
