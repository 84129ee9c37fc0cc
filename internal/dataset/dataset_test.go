package dataset

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/convnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idxImages(t *testing.T, pixels [][]byte, rows, cols int) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range []uint32{mnistImageMagic, uint32(len(pixels)), uint32(rows), uint32(cols)} {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, v))
	}
	for _, p := range pixels {
		buf.Write(p)
	}
	return buf.Bytes()
}

func idxLabels(t *testing.T, labels []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, [2]uint32{mnistLabelMagic, uint32(len(labels))}))
	buf.Write(labels)
	return buf.Bytes()
}

func TestReadMNIST(t *testing.T) {
	raw := idxImages(t, [][]byte{{0, 1, 2, 3, 4, 5}, {255, 254, 253, 252, 251, 250}}, 2, 3)
	images, err := ReadMNISTImages(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, tensor.Shape{2, 1, 2, 3}, images.Shape())
	assert.Equal(t, []float32{0, 1, 2, 3, 4, 5}, images[0][0].Data())
	assert.Equal(t, float32(250), images[1][0].At(1, 2))

	labels, err := ReadMNISTLabels(bytes.NewReader(idxLabels(t, []byte{7, 3})))
	require.NoError(t, err)
	assert.Equal(t, []int{7, 3}, labels)
}

func TestReadMNIST_Errors(t *testing.T) {
	_, err := ReadMNISTImages(bytes.NewReader(idxLabels(t, []byte{1})))
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = ReadMNISTLabels(bytes.NewReader(idxImages(t, nil, 1, 1)))
	assert.ErrorIs(t, err, ErrBadMagic)

	raw := idxImages(t, [][]byte{{1, 2, 3, 4}}, 2, 2)
	_, err = ReadMNISTImages(bytes.NewReader(raw[:len(raw)-1]))
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = ReadMNISTImages(bytes.NewReader(raw[:6]))
	assert.ErrorIs(t, err, ErrTruncated)

	for _, size := range [][2]int{{0, 4}, {1 << 20, 1 << 20}, {1 << 25, 1}} {
		_, err = ReadMNISTImages(bytes.NewReader(idxImages(t, nil, size[0], size[1])))
		assert.ErrorIs(t, err, ErrBadHeader, "%dx%d", size[0], size[1])
	}

	lab := idxLabels(t, []byte{1, 2, 3})
	_, err = ReadMNISTLabels(bytes.NewReader(lab[:len(lab)-1]))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestLoadMNIST(t *testing.T) {
	dir := t.TempDir()
	pix := [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train-images-idx3-ubyte"), idxImages(t, pix, 2, 2), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train-labels.idx1-ubyte"), idxLabels(t, []byte{0, 1, 2}), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t10k-images-idx3-ubyte"), idxImages(t, pix, 2, 2), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t10k-labels-idx1-ubyte"), idxLabels(t, []byte{0, 1}), 0o600))

	ds, err := LoadMNIST(dir, true)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, 3, ds.NumClasses())

	_, err = LoadMNIST(dir, false)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = LoadMNIST(t.TempDir(), true)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func cifarTestRecord(label byte, fill [3]byte) []byte {
	rec := []byte{label}
	for _, v := range fill {
		rec = append(rec, bytes.Repeat([]byte{v}, cifarPlane)...)
	}
	return rec
}

func TestReadCIFAR10(t *testing.T) {
	raw := append(cifarTestRecord(3, [3]byte{10, 20, 30}), cifarTestRecord(9, [3]byte{1, 2, 3})...)
	ds, err := ReadCIFAR10(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 9}, ds.Labels)
	c, h, w := ds.Shape()
	assert.Equal(t, []int{3, 32, 32}, []int{c, h, w})
	assert.Equal(t, float32(20), ds.Images[0][1].At(31, 31))
	assert.Equal(t, float32(3), ds.Images[1][2].At(0, 0))

	_, err = ReadCIFAR10(bytes.NewReader(raw[:len(raw)-5]))
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = ReadCIFAR10(bytes.NewReader(cifarTestRecord(10, [3]byte{})))
	assert.Error(t, err)

	_, err = ReadCIFAR10(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoadCIFAR10(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin", "data_batch_4.bin", "data_batch_5.bin", "test_batch.bin"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), cifarTestRecord(byte(i%10), [3]byte{byte(i)}), 0o600))
	}
	train, err := LoadCIFAR10(dir, true)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, train.Labels)

	test, err := LoadCIFAR10(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, test.Labels)
}

func tiny(t *testing.T) *Dataset {
	t.Helper()
	images := tensor.NewImageBatch(4, 1, 1, 2)
	for i, img := range images {
		img[0].Data()[0] = float32(i)
		img[0].Data()[1] = float32(10 * i)
	}
	ds, err := New(images, []int{0, 1, 0, 1})
	require.NoError(t, err)
	return ds
}

func TestDataset_MeanAndNormalize(t *testing.T) {
	ds := tiny(t)
	mean := ds.Mean()
	assert.Equal(t, []float32{1.5, 15}, mean[0].Data())

	require.NoError(t, ds.SubtractMean(mean))
	assert.Equal(t, []float32{-1.5, -15}, ds.Images[0][0].Data())
	assert.Equal(t, []float32{0, 0}, ds.Mean()[0].Data())

	ds.Normalize(2)
	assert.Equal(t, []float32{3, 30}, ds.Images[3][0].Data())

	assert.ErrorIs(t, ds.SubtractMean(tensor.NewImage(2, 1, 2)), tensor.ErrShapeMismatch)
}

func TestDataset_Split(t *testing.T) {
	ds := tiny(t)
	head, tail, err := ds.Split(3)
	require.NoError(t, err)
	assert.Equal(t, 3, head.Len())
	assert.Equal(t, []int{1}, tail.Labels)
	assert.Same(t, ds.Images[3][0], tail.Images[0][0])

	_, _, err = ds.Split(4)
	assert.Error(t, err)
}

func TestDataset_Batch(t *testing.T) {
	ds := tiny(t)
	dst := tensor.NewImageBatch(3, 1, 1, 2)
	labels := make([]int, 3)
	index := []int{3, 2, 1, 0}

	n, err := ds.Batch(dst, labels, index, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 0, 1}, labels)
	assert.Equal(t, []float32{3, 30}, dst[0][0].Data())

	// The last batch wraps to the beginning of the ordering.
	n, err = ds.Batch(dst, labels, index, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []float32{0, 0}, dst[0][0].Data())
	assert.Equal(t, []float32{3, 30}, dst[1][0].Data())

	_, err = ds.Batch(dst, labels[:2], index, 0)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
	_, err = ds.Batch(tensor.NewImageBatch(1, 2, 1, 2), []int{0}, index, 0)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
	_, err = ds.Batch(dst, labels, index, 4)
	assert.Error(t, err)
}

func TestPermutation(t *testing.T) {
	p := Permutation(50, newSource(1))
	assert.Equal(t, p, Permutation(50, newSource(1)))
	assert.ElementsMatch(t, Identity(50), p)
	assert.NotEqual(t, Identity(50), p)
}

func TestSynthetic(t *testing.T) {
	ds, err := Synthetic(6, 1, 6, 4, 3, 0, newSource(2))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, ds.Labels)
	// Class 1 lights rows 2 and 3.
	assert.Equal(t, float32(200), ds.Images[1][0].At(2, 0))
	assert.Equal(t, float32(0), ds.Images[1][0].At(0, 0))

	_, err = Synthetic(2, 1, 2, 2, 3, 1, newSource(2))
	assert.Error(t, err)
}
