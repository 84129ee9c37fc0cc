// Package linalg provides the dense float32 matrix primitives used by the
// layers: a transpose-aware matrix multiply backed by gonum BLAS, and the bias
// broadcast and reduction helpers.
package linalg

import (
	"github.com/born-ml/convnet/internal/tensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// MatMul computes z = op(x) × op(y), where op transposes its operand when the
// corresponding flag is set. z must already have the result shape.
func MatMul(z, x, y *tensor.Matrix, transX, transY bool) error {
	return gemm(z, x, y, transX, transY, 0)
}

// MatMulAdd computes z += op(x) × op(y).
func MatMulAdd(z, x, y *tensor.Matrix, transX, transY bool) error {
	return gemm(z, x, y, transX, transY, 1)
}

func gemm(z, x, y *tensor.Matrix, transX, transY bool, beta float32) error {
	m, k := x.Rows(), x.Cols()
	if transX {
		m, k = k, m
	}
	ky, n := y.Rows(), y.Cols()
	if transY {
		ky, n = n, ky
	}
	if k != ky {
		return tensor.Mismatch("matmul", "inner dimensions %d and %d differ (x %v transposed=%t, y %v transposed=%t)",
			k, ky, x.Shape(), transX, y.Shape(), transY)
	}
	if z.Rows() != m || z.Cols() != n {
		return tensor.Mismatch("matmul", "output is %v, want [%d %d]", z.Shape(), m, n)
	}

	// BLAS rejects zero-sized operands; the product is then all zeros.
	if m == 0 || n == 0 {
		return nil
	}
	if k == 0 {
		if beta == 0 {
			z.Zero()
		}
		return nil
	}

	blas32.Gemm(op(transX), op(transY), 1, general(x), general(y), beta, general(z))
	return nil
}

func op(trans bool) blas.Transpose {
	if trans {
		return blas.Trans
	}
	return blas.NoTrans
}

func general(m *tensor.Matrix) blas32.General {
	return blas32.General{Rows: m.Rows(), Cols: m.Cols(), Stride: m.Cols(), Data: m.Data()}
}
