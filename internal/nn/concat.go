package nn

import (
	"github.com/born-ml/convnet/internal/parallel"
	"github.com/born-ml/convnet/internal/tensor"
)

// Flatten copies every image of src into one row of dst, channel-major.
// dst must be len(src) × C*H*W.
func Flatten(dst *tensor.Matrix, src tensor.ImageBatch) error {
	if err := src.Validate(); err != nil {
		return err
	}
	s := src.Shape()
	if dst.Rows() != s[0] || dst.Cols() != s[1]*s[2]*s[3] {
		return tensor.Mismatch("flatten", "dst is %v, want [%d %d]", dst.Shape(), s[0], s[1]*s[2]*s[3])
	}
	for i, img := range src {
		flattenOne(dst.Row(i), img)
	}
	return nil
}

// Unflatten is the inverse of Flatten: row i of src is split back into the
// channel maps of dst[i].
func Unflatten(dst tensor.ImageBatch, src *tensor.Matrix) error {
	if err := dst.Validate(); err != nil {
		return err
	}
	s := dst.Shape()
	if src.Rows() != s[0] || src.Cols() != s[1]*s[2]*s[3] {
		return tensor.Mismatch("unflatten", "src is %v, want [%d %d]", src.Shape(), s[0], s[1]*s[2]*s[3])
	}
	for i, img := range dst {
		unflattenOne(img, src.Row(i))
	}
	return nil
}

func flattenOne(row []float32, img tensor.Image) {
	off := 0
	for _, m := range img {
		off += copy(row[off:], m.Data())
	}
}

func unflattenOne(img tensor.Image, row []float32) {
	off := 0
	for _, m := range img {
		off += copy(m.Data(), row[off:off+m.Len()])
	}
}

// Concat collapses an image batch into a flat batch (batch × C*H*W).
type Concat struct {
	workers parallel.Config
	in      *ImagePort
	out     *FlatPort
}

// NewConcat creates a concatenation layer.
func NewConcat() *Concat {
	return &Concat{}
}

// Kind implements Layer.
func (c *Concat) Kind() Kind { return KindConcat }

// ConnectImage implements ImageConsumer.
func (c *Concat) ConnectImage(in *ImagePort) { c.in = in }

// FlatOutput implements FlatProducer.
func (c *Concat) FlatOutput() *FlatPort { return c.out }

func (c *Concat) useParallel(cfg parallel.Config) { c.workers = cfg }

func (c *Concat) parallelConfig() parallel.Config { return c.workers }

// Init implements Layer.
func (c *Concat) Init() error {
	shape, err := imageInputShape("concat", c.in)
	if err != nil {
		return err
	}
	c.out = newFlatPort(shape[0], shape[1]*shape[2]*shape[3])
	return nil
}

// Forward implements Layer.
func (c *Concat) Forward() error {
	if c.out == nil {
		return notInitialized("concat")
	}
	in, out := c.in.Value, c.out.Value
	parallel.For(len(in), func(i int) {
		flattenOne(out.Row(i), in[i])
	}, c.workers)
	return nil
}

// Backward implements Layer.
func (c *Concat) Backward() error {
	if c.out == nil {
		return notInitialized("concat")
	}
	if c.in.Grad == nil {
		return nil
	}
	dst, grad := c.in.Grad, c.out.Grad
	parallel.For(len(dst), func(i int) {
		unflattenOne(dst[i], grad.Row(i))
	}, c.workers)
	return nil
}
