package nn

import (
	"math/rand/v2"
	"testing"

	"github.com/born-ml/convnet/internal/geometry"
	"github.com/born-ml/convnet/internal/parallel"
	"github.com/born-ml/convnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallCNN: conv → relu → pool → dropout → concat → fc → flat dropout → loss
// over a batch of four 1×6×6 images and three classes.
func smallCNN(t *testing.T, seed uint64) *Network {
	t.Helper()
	learn := geometry.DefaultLearnGeometry()

	conv, err := NewConv(ConvConfig{
		Weight: geometry.WeightGeometry{NumWeights: 4, WeightChns: 1, Width: 3, Height: 3, InitWeightScale: 0.1},
		Stride: geometry.UnitStride(),
		Pad:    geometry.Uniform(1),
		Learn:  learn,
	})
	require.NoError(t, err)
	relu, err := NewActivation(ActivationConfig{Name: "ReLU"})
	require.NoError(t, err)
	pool, err := NewPool(PoolConfig{
		Method: "Max",
		Window: geometry.WeightGeometry{Width: 2, Height: 2},
		Stride: geometry.StrideGeometry{StepRow: 2, StepCol: 2},
	})
	require.NoError(t, err)
	drop, err := NewDropout(DropoutConfig{Rate: 0.25})
	require.NoError(t, err)
	fc, err := NewFC(FCConfig{
		Weight: geometry.WeightGeometry{NumWeights: 3, WeightChns: 4, Width: 3, Height: 3, InitWeightScale: 0.1},
		Learn:  learn,
	})
	require.NoError(t, err)
	flatDrop, err := NewFlatDropout(DropoutConfig{Rate: 0.1})
	require.NoError(t, err)

	net := NewNetwork(WithSeed(seed), WithParallel(parallel.WithWorkers(2)))
	net.Add(conv, relu, pool, drop, NewConcat(), fc, flatDrop, NewSoftmaxLoss())
	require.NoError(t, net.SetImageInput(normalBatch(NewSource(seed+100), 4, 1, 6, 6)))
	net.SetLabels([]int{0, 1, 2, 1})
	return net
}

func TestNetwork_BuildAndTrainStep(t *testing.T) {
	net := smallCNN(t, 1)
	require.ErrorIs(t, net.Forward(), ErrNetworkNotBuilt)
	require.NoError(t, net.Build())

	assert.Nil(t, net.image.Grad, "first layer gets no input gradient")
	conv := net.Layers()[0].(*Conv)
	assert.Equal(t, parallel.WithWorkers(2), conv.parallelConfig())
	assert.Equal(t, 4*9+4+36*3+3, net.NumParams())
	assert.InDelta(t, float64(net.NumParams())*4/(1<<20), net.ModelSize(), 1e-12)

	require.NoError(t, net.Forward())
	assert.Equal(t, tensor.Shape{4, 3}, net.Output().Shape())
	assert.Len(t, net.Predictions(), 4)
	loss := net.Loss()
	assert.Greater(t, loss, 0.0)

	var reg float64
	for _, l := range net.Layers() {
		if tr, ok := l.(Trainable); ok {
			reg += tr.RegularizationCost()
		}
	}
	assert.InDelta(t, loss+reg, net.ObjectiveCost(), 1e-9)

	before := conv.Weights()[0].Value.Clone()
	require.NoError(t, net.Backward())
	require.NoError(t, net.Update())
	assert.False(t, before.Equal(conv.Weights()[0].Value))

	assert.InDelta(t, 0.01, net.LearningRate(), 1e-9)
	net.ScaleLearningRate()
	assert.InDelta(t, 0.0001, net.LearningRate(), 1e-9)
}

func TestNetwork_RemoveDropout(t *testing.T) {
	net := smallCNN(t, 2)
	require.NoError(t, net.Build())
	state := net.StateDict()
	assert.ElementsMatch(t, []string{
		"layer0.conv.weight.g0", "layer0.conv.bias",
		"layer4.fc.weight.g0", "layer4.fc.bias",
	}, keys(state))
	weights := make(map[string]*tensor.Matrix)
	for k, m := range state {
		weights[k] = m.Clone()
	}

	require.NoError(t, net.RemoveDropout())
	assert.Len(t, net.Layers(), 6)
	for _, l := range net.Layers() {
		assert.False(t, l.Kind().IsDropout())
	}
	assert.True(t, net.Built())

	after := net.StateDict()
	require.ElementsMatch(t, keys(weights), keys(after))
	for k, m := range weights {
		assert.True(t, m.Equal(after[k]), k)
	}

	// Without dropout the network is deterministic.
	require.NoError(t, net.Forward())
	first := net.Output().Clone()
	require.NoError(t, net.Forward())
	assert.True(t, first.Equal(net.Output()))
	require.NoError(t, net.Backward())
}

func TestNetwork_BuildErrors(t *testing.T) {
	assert.ErrorIs(t, NewNetwork().Build(), ErrNetworkEmpty)

	noInput := NewNetwork(WithSeed(1)).Add(NewSoftmaxLoss())
	assert.ErrorIs(t, noInput.Build(), ErrConfiguration)

	fc, err := NewFC(fcConfig(4, 2))
	require.NoError(t, err)
	wrongKind := NewNetwork(WithSeed(1)).Add(fc, NewSoftmaxLoss())
	require.NoError(t, wrongKind.SetImageInput(tensor.NewImageBatch(1, 1, 2, 2)))
	var cerr *ConfigError
	require.ErrorAs(t, wrongKind.Build(), &cerr)
	assert.Equal(t, "layer0.fc", cerr.Layer)

	afterLoss := NewNetwork(WithSeed(1)).Add(NewSoftmaxLoss(), NewConcat())
	require.NoError(t, afterLoss.SetFlatInput(tensor.NewMatrix(2, 2)))
	assert.ErrorIs(t, afterLoss.Build(), ErrConfiguration)

	relu, err := NewFlatActivation(ActivationConfig{Name: "relu"})
	require.NoError(t, err)
	noLoss := NewNetwork(WithSeed(1)).Add(relu)
	require.NoError(t, noLoss.SetFlatInput(tensor.NewMatrix(2, 2)))
	require.NoError(t, noLoss.Build())
	require.NoError(t, noLoss.Forward())
	assert.ErrorIs(t, noLoss.Backward(), ErrConfiguration)
	assert.Nil(t, noLoss.Output())

	assert.ErrorIs(t, NewNetwork().SetImageInput(tensor.ImageBatch{}), ErrConfiguration)
}

func TestNetwork_LoadStateDict(t *testing.T) {
	src := smallCNN(t, 3)
	require.NoError(t, src.Build())
	dst := smallCNN(t, 4)
	require.ErrorIs(t, dst.LoadStateDict(src.StateDict()), ErrNetworkNotBuilt)
	require.NoError(t, dst.Build())

	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	for k, m := range src.StateDict() {
		assert.True(t, m.Equal(dst.StateDict()[k]), k)
	}

	partial := src.StateDict()
	delete(partial, "layer4.fc.bias")
	assert.ErrorIs(t, dst.LoadStateDict(partial), ErrMissingParameter)

	wrong := src.StateDict()
	wrong["layer0.conv.bias"] = tensor.NewMatrix(1, 4)
	assert.ErrorIs(t, dst.LoadStateDict(wrong), tensor.ErrShapeMismatch)
}

func keys(m map[string]*tensor.Matrix) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// separable draws n 2-D points around (-2,-2) for class 0 and (2,2) for
// class 1.
func separable(seed uint64, n int) (*tensor.Matrix, []int) {
	r := rand.New(NewSource(seed))
	x := tensor.NewMatrix(n, 2)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i % 2
		center := float64(4*labels[i] - 2)
		x.Set(i, 0, float32(center+0.5*r.NormFloat64()))
		x.Set(i, 1, float32(center+0.5*r.NormFloat64()))
	}
	return x, labels
}

func TestNetwork_LearnsSeparableData(t *testing.T) {
	const n, batch, epochs = 200, 20, 15
	x, labels := separable(5, n)

	fc, err := NewFC(FCConfig{
		Weight: geometry.WeightGeometry{NumWeights: 2, WeightChns: 2, InitWeightScale: 0.1},
		Learn:  geometry.DefaultLearnGeometry(),
	})
	require.NoError(t, err)
	net := NewNetwork(WithSeed(9), WithParallel(parallel.Sequential()))
	net.Add(fc, NewSoftmaxLoss())
	require.NoError(t, net.SetFlatInput(tensor.NewMatrix(batch, 2)))
	require.NoError(t, net.Build())

	pass := func(train bool) (loss, acc float64) {
		for b := 0; b < n; b += batch {
			view, err := x.RowRange(b, b+batch)
			require.NoError(t, err)
			require.NoError(t, net.FlatInput().CopyFrom(view))
			net.SetLabels(labels[b : b+batch])
			require.NoError(t, net.Forward())
			loss += net.Loss()
			acc += net.Accuracy(labels[b : b+batch])
			if train {
				require.NoError(t, net.Backward())
				require.NoError(t, net.Update())
			}
		}
		return loss / (n / batch), acc / (n / batch)
	}

	history := make([]float64, epochs)
	for e := range history {
		history[e], _ = pass(true)
	}
	for e := epochs / 2; e < epochs; e++ {
		assert.Less(t, history[e], history[0], "epoch %d", e)
	}
	assert.Less(t, history[epochs-1], 0.15)

	_, acc := pass(false)
	assert.Greater(t, acc, 0.95)
}
