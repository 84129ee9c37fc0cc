package linalg

import (
	"math/rand/v2"
	"testing"

	"github.com/born-ml/convnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomMatrix(rng *rand.Rand, rows, cols int) *tensor.Matrix {
	m := tensor.NewMatrix(rows, cols)
	for i := range m.Data() {
		m.Data()[i] = float32(rng.NormFloat64())
	}
	return m
}

func toDense(m *tensor.Matrix) *mat.Dense {
	data := make([]float64, m.Len())
	for i, v := range m.Data() {
		data[i] = float64(v)
	}
	return mat.NewDense(m.Rows(), m.Cols(), data)
}

func TestMatMul_AgainstGonumMat(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	tests := []struct {
		name           string
		transX, transY bool
	}{
		{"NN", false, false},
		{"TN", true, false},
		{"NT", false, true},
		{"TT", true, true},
	}

	const m, k, n = 4, 5, 3
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xr, xc := m, k
			if tt.transX {
				xr, xc = k, m
			}
			yr, yc := k, n
			if tt.transY {
				yr, yc = n, k
			}
			x := randomMatrix(rng, xr, xc)
			y := randomMatrix(rng, yr, yc)
			z := tensor.NewMatrix(m, n)
			require.NoError(t, MatMul(z, x, y, tt.transX, tt.transY))

			var a, b mat.Matrix = toDense(x), toDense(y)
			if tt.transX {
				a = a.T()
			}
			if tt.transY {
				b = b.T()
			}
			var want mat.Dense
			want.Mul(a, b)

			for r := 0; r < m; r++ {
				for c := 0; c < n; c++ {
					assert.InDelta(t, want.At(r, c), float64(z.At(r, c)), 1e-4)
				}
			}
		})
	}
}

func TestMatMulAdd_Accumulates(t *testing.T) {
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, 2, 2)
	y, _ := tensor.FromSlice([]float32{1, 0, 0, 1}, 2, 2)
	z, _ := tensor.FromSlice([]float32{10, 10, 10, 10}, 2, 2)

	require.NoError(t, MatMulAdd(z, x, y, false, false))
	assert.Equal(t, []float32{11, 12, 13, 14}, z.Data())

	require.NoError(t, MatMul(z, x, y, false, false))
	assert.Equal(t, []float32{1, 2, 3, 4}, z.Data())
}

func TestMatMul_ShapeErrors(t *testing.T) {
	x := tensor.NewMatrix(2, 3)
	y := tensor.NewMatrix(2, 3)

	err := MatMul(tensor.NewMatrix(2, 3), x, y, false, false)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	err = MatMul(tensor.NewMatrix(3, 3), x, y, false, true)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	require.NoError(t, MatMul(tensor.NewMatrix(2, 2), x, y, false, true))
}

func TestMatMul_EmptyInner(t *testing.T) {
	z, _ := tensor.FromSlice([]float32{5, 5}, 1, 2)
	require.NoError(t, MatMul(z, tensor.NewMatrix(1, 0), tensor.NewMatrix(0, 2), false, false))
	assert.Equal(t, []float32{0, 0}, z.Data())
}

func TestBiasHelpers(t *testing.T) {
	m, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)

	row, _ := tensor.FromSlice([]float32{1, 1, 1}, 1, 3)
	require.NoError(t, AddRowVector(m, row))
	assert.Equal(t, []float32{2, 3, 4, 5, 6, 7}, m.Data())

	col, _ := tensor.FromSlice([]float32{-2, -5}, 2, 1)
	require.NoError(t, AddColVector(m, col))
	assert.Equal(t, []float32{0, 1, 2, 0, 1, 2}, m.Data())

	sr := tensor.NewMatrix(1, 3)
	require.NoError(t, SumRows(sr, m))
	assert.Equal(t, []float32{0, 2, 4}, sr.Data())

	sc := tensor.NewMatrix(2, 1)
	require.NoError(t, SumCols(sc, m))
	assert.Equal(t, []float32{3, 3}, sc.Data())

	assert.ErrorIs(t, AddRowVector(m, col), tensor.ErrShapeMismatch)
	assert.ErrorIs(t, SumCols(sr, m), tensor.ErrShapeMismatch)
	assert.InDelta(t, 10.0, Dot([]float32{1, 2}, []float32{2, 4}), 1e-12)
}
