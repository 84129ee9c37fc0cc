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

// Writer writes state dictionaries in SafeTensors format.
type Writer struct {
	w      io.Writer
	file   *os.File
	buf    *bufio.Writer
	closed bool
}

// NewWriter returns a Writer over w. Close does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Create creates (or truncates) the file at path.
func Create(path string) (*Writer, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	buf := bufio.NewWriter(file)
	return &Writer{w: buf, file: file, buf: buf}, nil
}

// WriteSafeTensors writes tensors and metadata to path.
//
// Tensors are written in alphabetical order by name; metadata gains the
// checksum of the data section under ChecksumKey.
func WriteSafeTensors(path string, tensors map[string]*tensor.Matrix, metadata map[string]string) (err error) {
	writer, err := Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return writer.WriteStateDict(tensors, metadata)
}

// WriteStateDict writes one SafeTensors document.
func (w *Writer) WriteStateDict(stateDict map[string]*tensor.Matrix, metadata map[string]string) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	if len(stateDict) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(stateDict), MaxTensorCount),
			Err:     ErrTooManyTensors,
		}
	}

	names := make([]string, 0, len(stateDict))
	for name, m := range stateDict {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("tensor %q is nil", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	var size int64
	for _, name := range names {
		m := stateDict[name]
		n := int64(m.Len()) * Float32Size
		header[name] = SafeTensorHeader{
			DType:       DTypeFloat32,
			Shape:       []int64{int64(m.Rows()), int64(m.Cols())},
			DataOffsets: [2]int64{size, size + n},
		}
		size += n
	}

	data := make([]byte, size)
	off := 0
	for _, name := range names {
		for _, v := range stateDict[name].Data() {
			binary.LittleEndian.PutUint32(data[off:], math.Float32bits(v))
			off += Float32Size
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[ChecksumKey] = EncodeChecksum(ComputeChecksum(data))
	header[MetadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	// Pad with spaces so the data section starts 8-byte aligned.
	for (HeaderLenSize+len(headerJSON))%8 != 0 {
		headerJSON = append(headerJSON, ' ')
	}

	if err := binary.Write(w.w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the file opened by Create.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.file == nil {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to flush: %w", err)
	}
	return w.file.Close()
}
