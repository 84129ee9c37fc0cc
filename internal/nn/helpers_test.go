package nn

import (
	"math/rand/v2"
	"testing"

	"github.com/born-ml/convnet/internal/tensor"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

// sequence fills every map of b with start, start+1, ... in row-major order,
// continuing across channels and images.
func sequence(b tensor.ImageBatch, start float32) {
	for _, img := range b {
		for _, m := range img {
			for i := range m.Data() {
				m.Data()[i] = start
				start++
			}
		}
	}
}

// normalBatch returns an n×c×h×w batch of N(0, 1) draws.
func normalBatch(src rand.Source, n, c, h, w int) tensor.ImageBatch {
	b := tensor.NewImageBatch(n, c, h, w)
	for _, img := range b {
		for _, m := range img {
			randomNormal(m, 0, src)
		}
	}
	return b
}

// imagePort wraps x in a port with a gradient buffer of the same shape.
func imagePort(x tensor.ImageBatch) *ImagePort {
	s := x.Shape()
	return &ImagePort{Value: x, Grad: tensor.NewImageBatch(s[0], s[1], s[2], s[3])}
}

// flatPort wraps m in a port with a gradient buffer of the same shape.
func flatPort(m *tensor.Matrix) *FlatPort {
	return &FlatPort{Value: m, Grad: tensor.NewMatrix(m.Rows(), m.Cols())}
}

// weightedImageSum returns Σ b ⊙ r, the loss whose gradient with respect to
// b is r.
func weightedImageSum(b, r tensor.ImageBatch) float64 {
	var s float64
	for i := range b {
		for ch := range b[i] {
			rd := r[i][ch].Data()
			for k, v := range b[i][ch].Data() {
				s += float64(v) * float64(rd[k])
			}
		}
	}
	return s
}

func weightedSum(m, r *tensor.Matrix) float64 {
	var s float64
	rd := r.Data()
	for k, v := range m.Data() {
		s += float64(v) * float64(rd[k])
	}
	return s
}

// checkGradient compares analytic against central differences of loss with
// respect to values, restoring values afterwards.
func checkGradient(t *testing.T, name string, values, analytic []float32, loss func() float64) {
	t.Helper()
	require.Len(t, analytic, len(values), name)

	x := make([]float64, len(values))
	for i, v := range values {
		x[i] = float64(v)
	}
	f := func(v []float64) float64 {
		for i := range values {
			values[i] = float32(v[i])
		}
		return loss()
	}
	// The losses below are linear in every parameter, so a large step is exact
	// and keeps float32 cancellation small.
	numeric := fd.Gradient(nil, f, x, &fd.Settings{Formula: fd.Central, Step: 0.25})
	for i := range values {
		values[i] = float32(x[i])
	}

	for i := range numeric {
		tol := 1e-3 * max(1, abs(numeric[i]))
		if d := numeric[i] - float64(analytic[i]); d > tol || d < -tol {
			t.Errorf("%s[%d]: analytic %v, numeric %v", name, i, analytic[i], numeric[i])
		}
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func copyOf(s []float32) []float32 {
	return append([]float32(nil), s...)
}
