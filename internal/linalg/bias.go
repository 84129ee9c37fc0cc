package linalg

import "github.com/born-ml/convnet/internal/tensor"

// AddRowVector adds the 1 × cols vector v to every row of m.
func AddRowVector(m, v *tensor.Matrix) error {
	if v.Len() != m.Cols() {
		return tensor.Mismatch("add row vector", "vector has %d elements, matrix has %d columns", v.Len(), m.Cols())
	}
	bias := v.Data()
	for r := 0; r < m.Rows(); r++ {
		row := m.Row(r)
		for c := range row {
			row[c] += bias[c]
		}
	}
	return nil
}

// AddColVector adds v[r] to every element of row r of m.
func AddColVector(m, v *tensor.Matrix) error {
	if v.Len() != m.Rows() {
		return tensor.Mismatch("add col vector", "vector has %d elements, matrix has %d rows", v.Len(), m.Rows())
	}
	bias := v.Data()
	for r := 0; r < m.Rows(); r++ {
		b := bias[r]
		row := m.Row(r)
		for c := range row {
			row[c] += b
		}
	}
	return nil
}

// SumRows accumulates the sum of every row of m into dst (cols elements):
// dst[c] += Σ_r m[r][c].
func SumRows(dst, m *tensor.Matrix) error {
	if dst.Len() != m.Cols() {
		return tensor.Mismatch("sum rows", "dst has %d elements, matrix has %d columns", dst.Len(), m.Cols())
	}
	out := dst.Data()
	for r := 0; r < m.Rows(); r++ {
		for c, v := range m.Row(r) {
			out[c] += v
		}
	}
	return nil
}

// SumCols accumulates the sum of every column into dst (rows elements):
// dst[r] += Σ_c m[r][c].
func SumCols(dst, m *tensor.Matrix) error {
	if dst.Len() != m.Rows() {
		return tensor.Mismatch("sum cols", "dst has %d elements, matrix has %d rows", dst.Len(), m.Rows())
	}
	out := dst.Data()
	for r := 0; r < m.Rows(); r++ {
		var s float32
		for _, v := range m.Row(r) {
			s += v
		}
		out[r] += s
	}
	return nil
}

// Dot returns Σ a[i]·b[i] accumulated in float64.
func Dot(a, b []float32) float64 {
	var s float64
	for i, v := range a {
		s += float64(v) * float64(b[i])
	}
	return s
}
