package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/born-ml/convnet/internal/tensor"
)

// CIFAR-10 record layout.
const (
	CIFARChannels = 3
	CIFARRows     = 32
	CIFARCols     = 32
	CIFARClasses  = 10

	cifarPlane  = CIFARRows * CIFARCols
	cifarRecord = 1 + CIFARChannels*cifarPlane
)

// ReadCIFAR10 reads CIFAR-10 binary records until EOF. A partial trailing
// record is an error.
func ReadCIFAR10(r io.Reader) (*Dataset, error) {
	br := bufio.NewReader(r)
	var (
		images tensor.ImageBatch
		labels []int
	)
	buf := make([]byte, cifarRecord)
	for {
		_, err := io.ReadFull(br, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", len(labels), truncated(err))
		}
		if buf[0] >= CIFARClasses {
			return nil, fmt.Errorf("record %d: label %d not in [0, %d)", len(labels), buf[0], CIFARClasses)
		}
		img := tensor.NewImage(CIFARChannels, CIFARRows, CIFARCols)
		for ch, m := range img {
			bytesToFloat(m.Data(), buf[1+ch*cifarPlane:1+(ch+1)*cifarPlane])
		}
		images = append(images, img)
		labels = append(labels, int(buf[0]))
	}
	return New(images, labels)
}

// LoadCIFAR10Batch reads one binary batch file.
func LoadCIFAR10Batch(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ds, err := ReadCIFAR10(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return ds, nil
}

// LoadCIFAR10 loads data_batch_1..5 (train) or test_batch from dir.
func LoadCIFAR10(dir string, train bool) (*Dataset, error) {
	names := []string{"test_batch.bin"}
	if train {
		names = []string{"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin", "data_batch_4.bin", "data_batch_5.bin"}
	}
	all := &Dataset{}
	for _, name := range names {
		ds, err := LoadCIFAR10Batch(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		all.Images = append(all.Images, ds.Images...)
		all.Labels = append(all.Labels, ds.Labels...)
	}
	return all, nil
}
