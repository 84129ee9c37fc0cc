package tensor

// Matrix is a dense row-major float32 matrix.
//
// A Matrix doubles as a single feature map (height × width) and as a flat
// batch (batch × features). RowRange returns views that share storage with
// the parent, which is how group partitions of weights and im2col buffers
// are expressed without copying.
type Matrix struct {
	rows int
	cols int
	data []float32
}

// NewMatrix allocates a zero-filled rows × cols matrix.
//
// Zero-sized dimensions are allowed; negative ones panic, like make.
func NewMatrix(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(Mismatch("new matrix", "negative dimensions %dx%d", rows, cols))
	}
	return &Matrix{rows: rows, cols: cols, data: make([]float32, rows*cols)}
}

// FromSlice wraps data (not copied) as a rows × cols matrix.
func FromSlice(data []float32, rows, cols int) (*Matrix, error) {
	if rows < 0 || cols < 0 {
		return nil, Mismatch("from slice", "negative dimensions %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, Mismatch("from slice", "len(data)=%d, want %dx%d=%d", len(data), rows, cols, rows*cols)
	}
	return &Matrix{rows: rows, cols: cols, data: data}, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// Len returns rows*cols.
func (m *Matrix) Len() int { return len(m.data) }

// Shape returns [rows, cols].
func (m *Matrix) Shape() Shape { return Shape{m.rows, m.cols} }

// Data exposes the underlying row-major storage.
func (m *Matrix) Data() []float32 { return m.data }

// At returns the element at (r, c).
func (m *Matrix) At(r, c int) float32 { return m.data[r*m.cols+c] }

// Set stores v at (r, c).
func (m *Matrix) Set(r, c int, v float32) { m.data[r*m.cols+c] = v }

// Row returns row r as a slice sharing storage.
func (m *Matrix) Row(r int) []float32 { return m.data[r*m.cols : (r+1)*m.cols] }

// SameShape reports whether m and other have identical dimensions.
func (m *Matrix) SameShape(other *Matrix) bool {
	return m.rows == other.rows && m.cols == other.cols
}

// RowRange returns rows [start, end) as a view sharing storage with m.
func (m *Matrix) RowRange(start, end int) (*Matrix, error) {
	if start < 0 || end < start || end > m.rows {
		return nil, Mismatch("row range", "[%d,%d) out of %d rows", start, end, m.rows)
	}
	return &Matrix{rows: end - start, cols: m.cols, data: m.data[start*m.cols : end*m.cols]}, nil
}

// Reshape returns a view of the same storage with different dimensions.
func (m *Matrix) Reshape(rows, cols int) (*Matrix, error) {
	if rows*cols != len(m.data) || rows < 0 || cols < 0 {
		return nil, Mismatch("reshape", "cannot view %dx%d as %dx%d", m.rows, m.cols, rows, cols)
	}
	return &Matrix{rows: rows, cols: cols, data: m.data}, nil
}

// Zero sets every element to 0.
func (m *Matrix) Zero() {
	clear(m.data)
}

// Fill sets every element to v.
func (m *Matrix) Fill(v float32) {
	for i := range m.data {
		m.data[i] = v
	}
}

// Scale multiplies every element by s.
func (m *Matrix) Scale(s float32) {
	for i := range m.data {
		m.data[i] *= s
	}
}

// Add accumulates other into m element-wise.
func (m *Matrix) Add(other *Matrix) error {
	if !m.SameShape(other) {
		return Mismatch("add", "%v vs %v", m.Shape(), other.Shape())
	}
	for i, v := range other.data {
		m.data[i] += v
	}
	return nil
}

// CopyFrom copies src into m. Dimensions must match.
func (m *Matrix) CopyFrom(src *Matrix) error {
	if !m.SameShape(src) {
		return Mismatch("copy", "dst %v, src %v", m.Shape(), src.Shape())
	}
	copy(m.data, src.data)
	return nil
}

// Clone returns a deep copy of m.
func (m *Matrix) Clone() *Matrix {
	out := NewMatrix(m.rows, m.cols)
	copy(out.data, m.data)
	return out
}

// Equal reports exact element-wise equality.
func (m *Matrix) Equal(other *Matrix) bool {
	if !m.SameShape(other) {
		return false
	}
	for i, v := range m.data {
		if other.data[i] != v {
			return false
		}
	}
	return true
}

// SumSquares returns Σ m[i]², accumulated in float64.
func (m *Matrix) SumSquares() float64 {
	var s float64
	for _, v := range m.data {
		s += float64(v) * float64(v)
	}
	return s
}
