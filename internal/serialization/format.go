package serialization

// Format constants.
const (
	MetadataKey   = "__metadata__"
	DTypeFloat32  = "F32"
	Float32Size   = 4
	HeaderLenSize = 8 // uint64 LE header length prefix
)

// SafeTensorHeader describes one tensor in the JSON header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// TensorMeta is the validated view of a header entry.
type TensorMeta struct {
	Name   string // Tensor name (e.g., "layer0.conv.weight.g0")
	DType  string // Data type, always "F32" for files this package writes
	Shape  []int  // Tensor shape, rank 1 or 2
	Offset int64  // Offset in the data section
	Size   int64  // Size in bytes
}

// Header is the parsed JSON header.
type Header struct {
	Tensors  []TensorMeta
	Metadata map[string]string
}

// matrixShape maps a rank-1 or rank-2 shape onto matrix dimensions. A rank-1
// tensor becomes a single row.
func matrixShape(shape []int) (rows, cols int, ok bool) {
	switch len(shape) {
	case 1:
		return 1, shape[0], shape[0] >= 0
	case 2:
		return shape[0], shape[1], shape[0] >= 0 && shape[1] >= 0
	}
	return 0, 0, false
}
