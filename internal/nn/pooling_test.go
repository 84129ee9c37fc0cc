package nn

import (
	"testing"

	"github.com/born-ml/convnet/internal/geometry"
	"github.com/born-ml/convnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, method string, win, stride int, pad geometry.PadGeometry, scaled bool, x tensor.ImageBatch) (*Pool, *ImagePort) {
	t.Helper()
	p, err := NewPool(PoolConfig{
		Method:     method,
		Window:     geometry.WeightGeometry{Width: win, Height: win},
		Stride:     geometry.StrideGeometry{StepRow: stride, StepCol: stride},
		Pad:        pad,
		ScaledMaps: scaled,
	})
	require.NoError(t, err)
	in := imagePort(x)
	p.ConnectImage(in)
	require.NoError(t, p.Init())
	return p, in
}

func fourByFour() tensor.ImageBatch {
	x := tensor.NewImageBatch(1, 1, 4, 4)
	sequence(x, 1)
	return x
}

func TestPool_FixedExample(t *testing.T) {
	tests := []struct {
		method string
		scaled bool
		want   []float32
	}{
		{"Max", false, []float32{6, 8, 14, 16}},
		{"Avg", false, []float32{14, 22, 46, 54}},
		{"avg", true, []float32{3.5, 5.5, 11.5, 13.5}},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			p, _ := newTestPool(t, tt.method, 2, 2, geometry.PadGeometry{}, tt.scaled, fourByFour())
			require.NoError(t, p.Forward())
			out := p.ImageOutput().Value[0][0]
			assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
			assert.Equal(t, tt.want, out.Data())
		})
	}
}

func TestPool_MaxBackward(t *testing.T) {
	p, in := newTestPool(t, "Max", 2, 2, geometry.PadGeometry{}, false, fourByFour())
	require.NoError(t, p.Forward())

	copy(p.ImageOutput().Grad[0][0].Data(), []float32{1, 2, 3, 4})
	in.Grad[0][0].Fill(99) // overwritten, not accumulated
	require.NoError(t, p.Backward())
	assert.Equal(t, []float32{
		0, 0, 0, 0,
		0, 1, 0, 2,
		0, 0, 0, 0,
		0, 3, 0, 4,
	}, in.Grad[0][0].Data())
}

func TestPool_MaxTieGoesToFirst(t *testing.T) {
	x := tensor.NewImageBatch(1, 1, 2, 2)
	x[0][0].Fill(5)
	p, in := newTestPool(t, "Max", 2, 2, geometry.PadGeometry{}, false, x)
	require.NoError(t, p.Forward())
	p.ImageOutput().Grad[0][0].Fill(1)
	require.NoError(t, p.Backward())
	assert.Equal(t, []float32{1, 0, 0, 0}, in.Grad[0][0].Data())
}

func TestPool_AvgBackward(t *testing.T) {
	p, in := newTestPool(t, "Avg", 2, 2, geometry.PadGeometry{}, false, fourByFour())
	require.NoError(t, p.Forward())
	p.ImageOutput().Grad[0][0].Fill(1)
	require.NoError(t, p.Backward())
	for _, v := range in.Grad[0][0].Data() {
		assert.Equal(t, float32(1), v)
	}

	p, in = newTestPool(t, "Avg", 2, 2, geometry.PadGeometry{}, true, fourByFour())
	require.NoError(t, p.Forward())
	p.ImageOutput().Grad[0][0].Fill(1)
	require.NoError(t, p.Backward())
	for _, v := range in.Grad[0][0].Data() {
		assert.Equal(t, float32(0.25), v)
	}
}

func TestPool_PaddingClipsWindows(t *testing.T) {
	// 3×3 windows, stride 2, one cell of padding: output 2×2; each window
	// covers only the in-bounds part of the map.
	p, in := newTestPool(t, "Avg", 3, 2, geometry.Uniform(1), false, fourByFour())
	require.NoError(t, p.Forward())
	out := p.ImageOutput().Value[0][0]
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	// window (0,0) covers rows 0..1, cols 0..1: 1+2+5+6
	// window (0,1) covers rows 0..1, cols 1..3: 2+3+4+6+7+8
	assert.Equal(t, []float32{14, 30, 57, 99}, out.Data())

	p.ImageOutput().Grad[0][0].Fill(1)
	require.NoError(t, p.Backward())
	assert.Equal(t, []float32{
		1, 2, 1, 1,
		2, 4, 2, 2,
		1, 2, 1, 1,
		1, 2, 1, 1,
	}, in.Grad[0][0].Data())
}

func TestPool_EmptyWindow(t *testing.T) {
	// Padding as large as the window: the first output cell sees no input.
	x := tensor.NewImageBatch(1, 1, 2, 2)
	x[0][0].Fill(-3)
	p, in := newTestPool(t, "Max", 2, 2, geometry.PadGeometry{Top: 2, Left: 2}, false, x)
	require.NoError(t, p.Forward())
	out := p.ImageOutput().Value[0][0]
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{0, 0, 0, -3}, out.Data())

	p.ImageOutput().Grad[0][0].Fill(1)
	require.NoError(t, p.Backward())
	assert.Equal(t, []float32{1, 0, 0, 0}, in.Grad[0][0].Data())
}

func TestNewPool_Errors(t *testing.T) {
	_, err := NewPool(PoolConfig{Method: "median", Window: geometry.WeightGeometry{Width: 2, Height: 2}, Stride: geometry.UnitStride()})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewPool(PoolConfig{Method: "max", Window: geometry.WeightGeometry{Width: 0, Height: 2}, Stride: geometry.UnitStride()})
	assert.ErrorIs(t, err, ErrConfiguration)

	p, err := NewPool(PoolConfig{Method: "max", Window: geometry.WeightGeometry{Width: 5, Height: 5}, Stride: geometry.UnitStride()})
	require.NoError(t, err)
	p.ConnectImage(imagePort(fourByFour()))
	assert.ErrorIs(t, p.Init(), ErrConfiguration)
}
