package tensor

// Image is an ordered sequence of channel feature maps sharing one spatial size.
type Image []*Matrix

// ImageBatch is an ordered sequence of images sharing channel count and size.
//
// Layout is batch × channel × height × width.
type ImageBatch []Image

// NewImage allocates channels zero-filled maps of rows × cols. All maps of the
// image are carved out of one contiguous allocation.
func NewImage(channels, rows, cols int) Image {
	backing := make([]float32, channels*rows*cols)
	img := make(Image, channels)
	size := rows * cols
	for ch := range img {
		img[ch] = &Matrix{rows: rows, cols: cols, data: backing[ch*size : (ch+1)*size : (ch+1)*size]}
	}
	return img
}

// NewImageBatch allocates a zero-filled batch of shape [n, channels, rows, cols].
func NewImageBatch(n, channels, rows, cols int) ImageBatch {
	b := make(ImageBatch, n)
	for i := range b {
		b[i] = NewImage(channels, rows, cols)
	}
	return b
}

// Validate checks that img is non-empty and every channel has the same
// non-empty size.
func (img Image) Validate() error {
	if len(img) == 0 {
		return Mismatch("image", "no channels")
	}
	if img[0] == nil {
		return Mismatch("image", "channel 0 is nil")
	}
	rows, cols := img[0].rows, img[0].cols
	if rows <= 0 || cols <= 0 {
		return Mismatch("image", "empty feature map %dx%d", rows, cols)
	}
	for ch, m := range img {
		if m == nil {
			return Mismatch("image", "channel %d is nil", ch)
		}
		if m.rows != rows || m.cols != cols {
			return Mismatch("image", "channel %d is %dx%d, channel 0 is %dx%d", ch, m.rows, m.cols, rows, cols)
		}
	}
	return nil
}

// Zero clears every channel.
func (img Image) Zero() {
	for _, m := range img {
		m.Zero()
	}
}

// Shape returns [channels, height, width]. The image must be valid.
func (img Image) Shape() Shape {
	if len(img) == 0 {
		return Shape{0, 0, 0}
	}
	return Shape{len(img), img[0].rows, img[0].cols}
}

// Validate checks the batch invariants: non-empty at every level, identical
// channel counts and spatial sizes across all images.
func (b ImageBatch) Validate() error {
	if len(b) == 0 {
		return Mismatch("image batch", "no images")
	}
	if err := b[0].Validate(); err != nil {
		return err
	}
	want := b[0].Shape()
	for i := 1; i < len(b); i++ {
		if err := b[i].Validate(); err != nil {
			return err
		}
		if got := b[i].Shape(); !got.Equal(want) {
			return Mismatch("image batch", "image %d has shape %v, image 0 has %v", i, got, want)
		}
	}
	return nil
}

// Shape returns [batch, channels, height, width]. The batch must be valid.
func (b ImageBatch) Shape() Shape {
	if len(b) == 0 {
		return Shape{0, 0, 0, 0}
	}
	s := b[0].Shape()
	return Shape{len(b), s[0], s[1], s[2]}
}

// Zero clears every map of every image.
func (b ImageBatch) Zero() {
	for _, img := range b {
		img.Zero()
	}
}

// Clone returns a deep copy of the batch.
func (b ImageBatch) Clone() ImageBatch {
	out := make(ImageBatch, len(b))
	for i, img := range b {
		out[i] = make(Image, len(img))
		for ch, m := range img {
			out[i][ch] = m.Clone()
		}
	}
	return out
}

// CopyFrom copies src into b. Shapes must match.
func (b ImageBatch) CopyFrom(src ImageBatch) error {
	if !b.Shape().Equal(src.Shape()) {
		return Mismatch("copy batch", "dst %v, src %v", b.Shape(), src.Shape())
	}
	for i := range b {
		for ch := range b[i] {
			if err := b[i][ch].CopyFrom(src[i][ch]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Equal reports exact equality of shape and contents.
func (b ImageBatch) Equal(other ImageBatch) bool {
	if len(b) != len(other) {
		return false
	}
	for i := range b {
		if len(b[i]) != len(other[i]) {
			return false
		}
		for ch := range b[i] {
			if !b[i][ch].Equal(other[i][ch]) {
				return false
			}
		}
	}
	return true
}
