package dataset

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/convnet/internal/tensor"
)

// Dataset holds images and their class labels.
type Dataset struct {
	Images tensor.ImageBatch
	Labels []int
}

// New checks that images and labels line up and wraps them.
func New(images tensor.ImageBatch, labels []int) (*Dataset, error) {
	if len(images) != len(labels) {
		return nil, fmt.Errorf("%w: %d images, %d labels", ErrSizeMismatch, len(images), len(labels))
	}
	if len(images) == 0 {
		return nil, ErrEmpty
	}
	if err := images.Validate(); err != nil {
		return nil, err
	}
	return &Dataset{Images: images, Labels: labels}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Labels) }

// Shape returns the channels, rows and columns of one sample.
func (d *Dataset) Shape() (channels, rows, cols int) {
	if len(d.Images) == 0 {
		return 0, 0, 0
	}
	s := d.Images[0].Shape()
	return s[0], s[1], s[2]
}

// NumClasses returns one more than the largest label.
func (d *Dataset) NumClasses() int {
	n := 0
	for _, l := range d.Labels {
		n = max(n, l+1)
	}
	return n
}

// Normalize multiplies every pixel by scale (1/255 maps bytes to [0, 1]).
func (d *Dataset) Normalize(scale float32) {
	for _, img := range d.Images {
		for _, m := range img {
			m.Scale(scale)
		}
	}
}

// Mean returns the per-pixel mean image.
func (d *Dataset) Mean() tensor.Image {
	c, h, w := d.Shape()
	mean := tensor.NewImage(c, h, w)
	if d.Len() == 0 {
		return mean
	}
	acc := make([]float64, c*h*w)
	for _, img := range d.Images {
		off := 0
		for _, m := range img {
			for _, v := range m.Data() {
				acc[off] += float64(v)
				off++
			}
		}
	}
	n := float64(d.Len())
	off := 0
	for _, m := range mean {
		for i := range m.Data() {
			m.Data()[i] = float32(acc[off] / n)
			off++
		}
	}
	return mean
}

// SubtractMean subtracts mean from every image.
func (d *Dataset) SubtractMean(mean tensor.Image) error {
	c, h, w := d.Shape()
	if !mean.Shape().Equal(tensor.Shape{c, h, w}) {
		return tensor.Mismatch("subtract mean", "mean %v, samples [%d %d %d]", mean.Shape(), c, h, w)
	}
	for _, img := range d.Images {
		for ch, m := range img {
			src := mean[ch].Data()
			for i := range m.Data() {
				m.Data()[i] -= src[i]
			}
		}
	}
	return nil
}

// Split returns the first n samples and the rest. Both share storage with d.
func (d *Dataset) Split(n int) (head, tail *Dataset, err error) {
	if n <= 0 || n >= d.Len() {
		return nil, nil, fmt.Errorf("split at %d: want 0 < n < %d", n, d.Len())
	}
	head = &Dataset{Images: d.Images[:n:n], Labels: d.Labels[:n:n]}
	tail = &Dataset{Images: d.Images[n:], Labels: d.Labels[n:]}
	return head, tail, nil
}

// Permutation returns a random ordering of [0, n).
func Permutation(n int, src rand.Source) []int {
	return rand.New(src).Perm(n)
}

// Identity returns the ordering 0, 1, ..., n-1.
func Identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// Batch copies the samples index[start], index[start+1], ... into dst and
// labels. When fewer than len(dst) samples remain, indices wrap around to
// the beginning of index so dst is always full. It returns how many of the
// copied samples were not wrapped.
func (d *Dataset) Batch(dst tensor.ImageBatch, labels []int, index []int, start int) (int, error) {
	if len(labels) != len(dst) {
		return 0, tensor.Mismatch("batch", "%d labels for %d images", len(labels), len(dst))
	}
	if start < 0 || start >= len(index) {
		return 0, fmt.Errorf("batch start %d outside [0, %d)", start, len(index))
	}
	for i := range dst {
		k := index[(start+i)%len(index)]
		if len(dst[i]) != len(d.Images[k]) {
			return 0, tensor.Mismatch("batch", "%d channels, samples have %d", len(dst[i]), len(d.Images[k]))
		}
		for ch, m := range dst[i] {
			if err := m.CopyFrom(d.Images[k][ch]); err != nil {
				return 0, err
			}
		}
		labels[i] = d.Labels[k]
	}
	return min(len(dst), len(index)-start), nil
}
