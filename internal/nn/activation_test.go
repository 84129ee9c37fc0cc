package nn

import (
	"testing"

	"github.com/born-ml/convnet/internal/parallel"
	"github.com/born-ml/convnet/internal/tensor"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewActivationFunc(t *testing.T) {
	for _, name := range []string{"Linear", "sigmoid", "RELU", "brelu"} {
		fn, err := NewActivationFunc(name, 6)
		require.NoError(t, err, name)
		assert.NotEmpty(t, fn.Name())
	}

	_, err := NewActivationFunc("tanh", 0)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewActivationFunc("BReLU", 0)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "Bound", cerr.Field)
}

func TestActivationFuncs(t *testing.T) {
	src := []float32{-2, -0.5, 0, 0.5, 3, 8}
	grad := []float32{1, 1, 1, 1, 1, 1}

	tests := []struct {
		fn       ActivationFunc
		forward  []float32
		backward []float32
	}{
		{Linear{}, src, grad},
		{ReLU{}, []float32{0, 0, 0, 0.5, 3, 8}, []float32{0, 0, 0, 1, 1, 1}},
		{BReLU{Bound: 6}, []float32{0, 0, 0, 0.5, 3, 6}, []float32{0, 0, 0, 1, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.fn.Name(), func(t *testing.T) {
			out := make([]float32, len(src))
			tt.fn.Forward(out, src)
			assert.Equal(t, tt.forward, out)

			dst := make([]float32, len(src))
			tt.fn.Backward(dst, out, grad)
			assert.Equal(t, tt.backward, dst)
		})
	}

	t.Run("Sigmoid", func(t *testing.T) {
		out := make([]float32, len(src))
		Sigmoid{}.Forward(out, src)
		dst := make([]float32, len(src))
		Sigmoid{}.Backward(dst, out, grad)
		for i, x := range src {
			y := 1 / (1 + math32.Exp(-x))
			assert.InDelta(t, y, out[i], 1e-6)
			assert.InDelta(t, y*(1-y), dst[i], 1e-6)
		}
		assert.InDelta(t, 0.5, out[2], 1e-7)
	})
}

func TestActivationFuncs_NonFinite(t *testing.T) {
	nan, inf := math32.NaN(), math32.Inf(1)
	src := []float32{nan, inf, math32.Inf(-1)}
	grad := []float32{1, 1, 1}
	out := make([]float32, 3)
	dst := make([]float32, 3)

	ReLU{}.Forward(out, src)
	assert.True(t, math32.IsNaN(out[0]))
	assert.Equal(t, inf, out[1])
	assert.Equal(t, float32(0), out[2])
	ReLU{}.Backward(dst, out, grad)
	assert.Equal(t, []float32{0, 1, 0}, dst)

	b := BReLU{Bound: 1}
	b.Forward(out, src)
	assert.True(t, math32.IsNaN(out[0]))
	assert.Equal(t, float32(1), out[1])
	b.Backward(dst, out, grad)
	assert.Equal(t, []float32{0, 0, 0}, dst)
}

func TestActivation_Layer(t *testing.T) {
	x := tensor.NewImageBatch(3, 2, 4, 5)
	sequence(x, -20)
	in := imagePort(x)

	a, err := NewActivation(ActivationConfig{Name: "ReLU", Workers: parallel.WithWorkers(2)})
	require.NoError(t, err)
	assert.Equal(t, KindActivation, a.Kind())
	require.ErrorIs(t, a.Forward(), ErrNotInitialized)

	a.ConnectImage(in)
	require.NoError(t, a.Init())
	require.NoError(t, a.Forward())

	out := a.ImageOutput()
	assert.Equal(t, x.Shape(), out.Value.Shape())
	for i := range x {
		for ch := range x[i] {
			for k, v := range x[i][ch].Data() {
				assert.Equal(t, max(v, 0), out.Value[i][ch].Data()[k])
			}
		}
	}

	for _, img := range out.Grad {
		for _, m := range img {
			m.Fill(1)
		}
	}
	require.NoError(t, a.Backward())
	for i := range x {
		for ch := range x[i] {
			for k, v := range x[i][ch].Data() {
				want := float32(0)
				if v > 0 {
					want = 1
				}
				assert.Equal(t, want, in.Grad[i][ch].Data()[k])
			}
		}
	}
}

func TestActivation_EmptyInput(t *testing.T) {
	a, err := NewActivation(ActivationConfig{Name: "Linear"})
	require.NoError(t, err)
	require.ErrorIs(t, a.Init(), ErrConfiguration)

	a.ConnectImage(&ImagePort{Value: tensor.ImageBatch{}})
	assert.ErrorIs(t, a.Init(), ErrConfiguration)
}

func TestFlatActivation(t *testing.T) {
	m, err := tensor.FromSlice([]float32{-1, 2, 3, -4}, 2, 2)
	require.NoError(t, err)
	in := flatPort(m)

	a, err := NewFlatActivation(ActivationConfig{Name: "brelu", Bound: 2.5})
	require.NoError(t, err)
	a.ConnectFlat(in)
	require.NoError(t, a.Init())
	require.NoError(t, a.Forward())
	assert.Equal(t, []float32{0, 2, 2.5, 0}, a.FlatOutput().Value.Data())

	a.FlatOutput().Grad.Fill(3)
	require.NoError(t, a.Backward())
	assert.Equal(t, []float32{0, 3, 0, 0}, in.Grad.Data())
}
