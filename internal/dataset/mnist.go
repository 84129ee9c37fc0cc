package dataset

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/born-ml/convnet/internal/tensor"
)

// IDX magic numbers.
const (
	mnistImageMagic = 2051
	mnistLabelMagic = 2049

	// maxImagePixels bounds rows*cols read from an IDX header.
	maxImagePixels = 1 << 24
)

// ReadMNISTImages reads an IDX image file (magic 2051) into a batch of
// single-channel images.
func ReadMNISTImages(r io.Reader) (tensor.ImageBatch, error) {
	br := bufio.NewReader(r)
	var header struct {
		Magic, Count, Rows, Cols uint32
	}
	if err := binary.Read(br, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read IDX header: %w", truncated(err))
	}
	if header.Magic != mnistImageMagic {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadMagic, header.Magic, mnistImageMagic)
	}
	rows, cols := int(header.Rows), int(header.Cols)
	if rows == 0 || cols == 0 || uint64(header.Rows)*uint64(header.Cols) > maxImagePixels {
		return nil, fmt.Errorf("%w: image size %dx%d", ErrBadHeader, rows, cols)
	}

	images := make(tensor.ImageBatch, 0, min(int(header.Count), 1<<16))
	buf := make([]byte, rows*cols)
	for i := 0; i < int(header.Count); i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("failed to read image %d: %w", i, truncated(err))
		}
		img := tensor.NewImage(1, rows, cols)
		bytesToFloat(img[0].Data(), buf)
		images = append(images, img)
	}
	return images, nil
}

// ReadMNISTLabels reads an IDX label file (magic 2049).
func ReadMNISTLabels(r io.Reader) ([]int, error) {
	br := bufio.NewReader(r)
	var header struct {
		Magic, Count uint32
	}
	if err := binary.Read(br, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read IDX header: %w", truncated(err))
	}
	if header.Magic != mnistLabelMagic {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadMagic, header.Magic, mnistLabelMagic)
	}

	labels := make([]int, 0, min(int(header.Count), 1<<16))
	for i := 0; i < int(header.Count); i++ {
		b, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("failed to read label %d: %w", i, truncated(err))
		}
		labels = append(labels, int(b))
	}
	return labels, nil
}

// LoadMNISTImages reads the IDX image file at path.
func LoadMNISTImages(path string) (tensor.ImageBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadMNISTImages(f)
}

// LoadMNISTLabels reads the IDX label file at path.
func LoadMNISTLabels(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadMNISTLabels(f)
}

// LoadMNIST loads the training (train-*) or test (t10k-*) split from dir.
// Both the "train-images-idx3-ubyte" and "train-images.idx3-ubyte" spellings
// are accepted.
func LoadMNIST(dir string, train bool) (*Dataset, error) {
	prefix := "t10k"
	if train {
		prefix = "train"
	}
	imagePath, err := findFile(dir, prefix+"-images-idx3-ubyte", prefix+"-images.idx3-ubyte")
	if err != nil {
		return nil, err
	}
	labelPath, err := findFile(dir, prefix+"-labels-idx1-ubyte", prefix+"-labels.idx1-ubyte")
	if err != nil {
		return nil, err
	}

	images, err := LoadMNISTImages(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}
	labels, err := LoadMNISTLabels(labelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	return New(images, labels)
}

func findFile(dir string, names ...string) (string, error) {
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("none of %v found in %s: %w", names, dir, os.ErrNotExist)
}

func bytesToFloat(dst []float32, src []byte) {
	for i, b := range src {
		dst[i] = float32(b)
	}
}

// truncated maps an early EOF to ErrTruncated.
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	return err
}
