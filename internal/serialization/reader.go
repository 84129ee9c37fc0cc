package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/born-ml/convnet/internal/tensor"
)

// ReaderOptions configures decoding.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Do not verify the data checksum
	RequireChecksum        bool            // Reject files without a checksum
	ValidationLevel        ValidationLevel // Validation strictness level
}

// ReadSafeTensors reads path with strict validation.
func ReadSafeTensors(path string) (map[string]*tensor.Matrix, map[string]string, error) {
	return ReadSafeTensorsWithOptions(path, ReaderOptions{ValidationLevel: ValidationStrict})
}

// ReadSafeTensorsWithOptions reads path with custom options.
func ReadSafeTensorsWithOptions(path string, opts ReaderOptions) (map[string]*tensor.Matrix, map[string]string, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close() // read-only
	}()

	return Decode(bufio.NewReader(file), opts)
}

// ReadHeader reads the length prefix and the JSON header from r, leaving r
// positioned at the data section.
func ReadHeader(r io.Reader) (*Header, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	return parseHeader(headerBytes)
}

func parseHeader(b []byte) (*Header, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeaderJSON, err)
	}
	h := &Header{Metadata: map[string]string{}}
	for name, raw := range entries {
		if name == MetadataKey {
			if err := json.Unmarshal(raw, &h.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidHeaderJSON, err)
			}
			continue
		}
		var th SafeTensorHeader
		if err := json.Unmarshal(raw, &th); err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %v", ErrInvalidHeaderJSON, name, err)
		}
		shape := make([]int, len(th.Shape))
		for i, d := range th.Shape {
			if d < 0 || d > math.MaxInt32 {
				return nil, &ValidationError{Type: "invalid_shape", Tensor: name, Details: fmt.Sprintf("dimension %d", d), Err: ErrInvalidShape}
			}
			shape[i] = int(d)
		}
		h.Tensors = append(h.Tensors, TensorMeta{
			Name:   name,
			DType:  th.DType,
			Shape:  shape,
			Offset: th.DataOffsets[0],
			Size:   th.DataOffsets[1] - th.DataOffsets[0],
		})
	}
	sort.Slice(h.Tensors, func(i, j int) bool { return h.Tensors[i].Name < h.Tensors[j].Name })
	return h, nil
}

// Decode reads one SafeTensors document from r.
func Decode(r io.Reader, opts ReaderOptions) (map[string]*tensor.Matrix, map[string]string, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	dataSize := int64(len(data))

	if err := ValidateHeader(h, dataSize, opts.ValidationLevel); err != nil {
		return nil, nil, fmt.Errorf("validation failed: %w", err)
	}

	stored, ok := h.Metadata[ChecksumKey]
	switch {
	case !ok && opts.RequireChecksum:
		return nil, nil, ErrMissingChecksum
	case ok && !opts.SkipChecksumValidation:
		sum, err := DecodeChecksum(stored)
		if err != nil {
			return nil, nil, err
		}
		if err := ValidateChecksum(ComputeChecksum(data), sum); err != nil {
			return nil, nil, err
		}
	}

	state := make(map[string]*tensor.Matrix, len(h.Tensors))
	for _, t := range h.Tensors {
		rows, cols, ok := matrixShape(t.Shape)
		if !ok || t.DType != DTypeFloat32 || int64(rows)*int64(cols)*Float32Size != t.Size {
			return nil, nil, fmt.Errorf("tensor %q: %w", t.Name, ErrInvalidShape)
		}
		if t.Offset < 0 || t.Size < 0 || t.Offset+t.Size > dataSize {
			return nil, nil, fmt.Errorf("tensor %q: %w", t.Name, ErrOutOfBounds)
		}
		m := tensor.NewMatrix(rows, cols)
		src := data[t.Offset : t.Offset+t.Size]
		for i := range m.Data() {
			m.Data()[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*Float32Size:]))
		}
		state[t.Name] = m
	}
	return state, h.Metadata, nil
}
