package nn

import (
	"testing"

	"github.com/born-ml/convnet/internal/geometry"
	"github.com/born-ml/convnet/internal/parallel"
	"github.com/born-ml/convnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// groupedConfig: 2 groups of 1 input channel and 2 outputs each, 3×3 kernel,
// row stride 2, asymmetric padding.
func groupedConfig(seed uint64, workers parallel.Config) ConvConfig {
	return ConvConfig{
		Weight: geometry.WeightGeometry{
			NumGroups:  2,
			NumWeights: 4,
			WeightChns: 1,
			Width:      3,
			Height:     3,
		},
		Stride:  geometry.StrideGeometry{StepRow: 2, StepCol: 1},
		Pad:     geometry.PadGeometry{Top: 1, Left: 0, Bottom: 2, Right: 1},
		Learn:   geometry.DefaultLearnGeometry(),
		Workers: workers,
		Source:  NewSource(seed),
	}
}

func newTestConv(t *testing.T, cfg ConvConfig, x tensor.ImageBatch) (*Conv, *ImagePort) {
	t.Helper()
	c, err := NewConv(cfg)
	require.NoError(t, err)
	in := imagePort(x)
	c.ConnectImage(in)
	require.NoError(t, c.Init())
	return c, in
}

func TestConv_Shapes(t *testing.T) {
	x := tensor.NewImageBatch(2, 2, 6, 6)
	c, _ := newTestConv(t, groupedConfig(1, parallel.Sequential()), x)

	// rows: (6+1+2-3)/2+1 = 4, cols: (6+0+1-3)/1+1 = 5
	assert.Equal(t, tensor.Shape{2, 4, 4, 5}, c.ImageOutput().Value.Shape())
	require.Len(t, c.Weights(), 2)
	for _, w := range c.Weights() {
		assert.Equal(t, tensor.Shape{2, 9}, w.Value.Shape())
	}
	assert.Equal(t, tensor.Shape{4, 1}, c.Bias().Value.Shape())
	assert.Len(t, c.Parameters(), 3)
	assert.Equal(t, 2*2*9+4, c.NumParams())
}

func TestConv_InitErrors(t *testing.T) {
	cfg := groupedConfig(1, parallel.Sequential())
	_, err := NewConv(ConvConfig{Weight: geometry.WeightGeometry{NumGroups: 3, NumWeights: 4, WeightChns: 1, Width: 1, Height: 1}, Stride: geometry.UnitStride()})
	assert.ErrorIs(t, err, ErrConfiguration, "NumWeights not divisible by groups")

	c, err := NewConv(cfg)
	require.NoError(t, err)
	c.ConnectImage(imagePort(tensor.NewImageBatch(1, 3, 6, 6)))
	assert.ErrorIs(t, c.Init(), ErrConfiguration, "channel count")

	c, err = NewConv(cfg)
	require.NoError(t, err)
	c.ConnectImage(imagePort(tensor.NewImageBatch(1, 2, 1, 1)))
	assert.ErrorIs(t, c.Init(), ErrConfiguration, "window larger than padded input")

	c, err = NewConv(cfg)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Forward(), ErrNotInitialized)
}

func TestConv_ForwardKnownValues(t *testing.T) {
	// 1 channel 3×3 input, one 2×2 kernel of ones, bias 0.5.
	cfg := ConvConfig{
		Weight: geometry.WeightGeometry{NumWeights: 1, WeightChns: 1, Width: 2, Height: 2},
		Stride: geometry.UnitStride(),
		Learn:  geometry.DefaultLearnGeometry(),
		Source: NewSource(1),
	}
	x := tensor.NewImageBatch(1, 1, 3, 3)
	sequence(x, 1)
	c, _ := newTestConv(t, cfg, x)
	c.Weights()[0].Value.Fill(1)
	c.Bias().Value.Fill(0.5)

	require.NoError(t, c.Forward())
	assert.Equal(t, []float32{12.5, 16.5, 24.5, 28.5}, c.ImageOutput().Value[0][0].Data())
}

func TestConv_GradientCheck(t *testing.T) {
	src := NewSource(7)
	x := normalBatch(src, 2, 2, 6, 6)
	c, in := newTestConv(t, groupedConfig(3, parallel.Sequential()), x)
	randomNormal(c.Bias().Value, 0, src)

	out := c.ImageOutput()
	r := normalBatch(src, 2, 4, 4, 5)
	loss := func() float64 {
		require.NoError(t, c.Forward())
		return weightedImageSum(out.Value, r)
	}

	loss()
	require.NoError(t, out.Grad.CopyFrom(r))
	require.NoError(t, c.Backward())

	for _, w := range c.Weights() {
		checkGradient(t, w.Name, w.Value.Data(), copyOf(w.Grad.Data()), loss)
	}
	checkGradient(t, "bias", c.Bias().Value.Data(), copyOf(c.Bias().Grad.Data()), loss)
	for i := range x {
		for ch := range x[i] {
			checkGradient(t, "input", x[i][ch].Data(), copyOf(in.Grad[i][ch].Data()), loss)
		}
	}
}

func TestConv_WorkersAgree(t *testing.T) {
	x := normalBatch(NewSource(11), 5, 2, 6, 6)
	r := normalBatch(NewSource(12), 5, 4, 4, 5)

	run := func(workers parallel.Config) (*Conv, *ImagePort) {
		c, in := newTestConv(t, groupedConfig(5, workers), x.Clone())
		require.NoError(t, c.Forward())
		require.NoError(t, c.ImageOutput().Grad.CopyFrom(r))
		require.NoError(t, c.Backward())
		return c, in
	}
	seq, seqIn := run(parallel.Sequential())
	par, parIn := run(parallel.WithWorkers(3))

	assert.True(t, seq.ImageOutput().Value.Equal(par.ImageOutput().Value))
	for g := range seq.Weights() {
		assert.InDeltaSlice(t, seq.Weights()[g].Grad.Data(), par.Weights()[g].Grad.Data(), 1e-4)
	}
	assert.InDeltaSlice(t, seq.Bias().Grad.Data(), par.Bias().Grad.Data(), 1e-4)
	assert.True(t, seqIn.Grad.Equal(parIn.Grad))

	// A second backward pass must not accumulate onto the first.
	first := copyOf(par.Bias().Grad.Data())
	require.NoError(t, par.Backward())
	assert.InDeltaSlice(t, first, par.Bias().Grad.Data(), 1e-6)
}

func TestConv_SkipInputGrad(t *testing.T) {
	cfg := groupedConfig(1, parallel.Sequential())
	cfg.SkipInputGrad = true
	c, in := newTestConv(t, cfg, normalBatch(NewSource(2), 1, 2, 6, 6))
	for _, m := range in.Grad[0] {
		m.Fill(7)
	}
	require.NoError(t, c.Forward())
	for _, m := range c.ImageOutput().Grad[0] {
		m.Fill(1)
	}
	require.NoError(t, c.Backward())
	for _, m := range in.Grad[0] {
		assert.Zero(t, m.SumSquares())
	}
	assert.NotZero(t, c.Weights()[0].Grad.SumSquares())
}

func TestConv_UpdateAndRegularization(t *testing.T) {
	cfg := groupedConfig(1, parallel.Sequential())
	c, _ := newTestConv(t, cfg, normalBatch(NewSource(2), 1, 2, 6, 6))

	var sum float64
	for _, w := range c.Weights() {
		sum += w.Value.SumSquares()
	}
	assert.InDelta(t, 0.5*0.005*sum, c.RegularizationCost(), 1e-6)

	before := c.Weights()[0].Value.Clone()
	require.NoError(t, c.Forward())
	for _, m := range c.ImageOutput().Grad[0] {
		m.Fill(1)
	}
	require.NoError(t, c.Backward())
	require.NoError(t, c.Update())
	assert.False(t, before.Equal(c.Weights()[0].Value))

	lr := c.Optimizer().GetLR()
	c.ScaleLearningRate()
	assert.InDelta(t, lr*0.01, c.Optimizer().GetLR(), 1e-9)
}
