package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/convnet/internal/parallel"
	"github.com/born-ml/convnet/internal/tensor"
)

// DropoutConfig configures Dropout and FlatDropout layers.
type DropoutConfig struct {
	Rate float32 // probability of dropping an entry, in [0, 1)

	// StaticMask reuses one mask for every forward pass. The mask is Mask
	// (FlatMask for FlatDropout) when given, otherwise it is drawn once at
	// Init.
	StaticMask bool
	Mask       tensor.ImageBatch
	FlatMask   *tensor.Matrix

	Workers parallel.Config
	Source  rand.Source // mask draws; nil uses the network's source
}

func (cfg DropoutConfig) validate(layer string) error {
	if !(cfg.Rate >= 0 && cfg.Rate < 1) {
		return configError(layer, "Rate", "rate %v outside [0, 1)", cfg.Rate)
	}
	return nil
}

// dropoutRand is shared by both dropout variants.
type dropoutRand struct {
	src rand.Source
}

func (d *dropoutRand) useSource(src rand.Source) {
	if d.src == nil {
		d.src = src
	}
}

func (d *dropoutRand) source() rand.Source {
	if d.src == nil {
		d.src = NewEntropySource()
	}
	return d.src
}

// Dropout zeroes random entries of an image batch and scales the survivors
// by 1/(1-Rate).
type Dropout struct {
	dropoutRand

	cfg  DropoutConfig
	in   *ImagePort
	out  *ImagePort
	mask tensor.ImageBatch
}

// NewDropout creates an image-batch dropout layer.
func NewDropout(cfg DropoutConfig) (*Dropout, error) {
	if err := cfg.validate("dropout"); err != nil {
		return nil, err
	}
	d := &Dropout{cfg: cfg}
	d.src = cfg.Source
	return d, nil
}

// Kind implements Layer.
func (d *Dropout) Kind() Kind { return KindDropout }

// Rate returns the drop probability.
func (d *Dropout) Rate() float32 { return d.cfg.Rate }

// Mask returns the mask applied by the last forward pass.
func (d *Dropout) Mask() tensor.ImageBatch { return d.mask }

// ConnectImage implements ImageConsumer.
func (d *Dropout) ConnectImage(in *ImagePort) { d.in = in }

// ImageOutput implements ImageProducer.
func (d *Dropout) ImageOutput() *ImagePort { return d.out }

func (d *Dropout) useParallel(cfg parallel.Config) { d.cfg.Workers = cfg }

func (d *Dropout) parallelConfig() parallel.Config { return d.cfg.Workers }

// Init implements Layer.
func (d *Dropout) Init() error {
	shape, err := imageInputShape("dropout", d.in)
	if err != nil {
		return err
	}
	d.out = newImagePort(shape[0], shape[1], shape[2], shape[3])

	switch {
	case d.cfg.StaticMask && d.cfg.Mask != nil:
		if err := d.cfg.Mask.Validate(); err != nil {
			return fmt.Errorf("dropout: static mask: %w", err)
		}
		if got := d.cfg.Mask.Shape(); !got.Equal(shape) {
			return tensor.Mismatch("dropout", "static mask %v, input %v", got, shape)
		}
		d.mask = d.cfg.Mask
	default:
		d.mask = tensor.NewImageBatch(shape[0], shape[1], shape[2], shape[3])
		if d.cfg.StaticMask {
			d.drawMask()
		}
	}
	return nil
}

func (d *Dropout) drawMask() {
	for _, img := range d.mask {
		for _, m := range img {
			randomMask(m.Data(), d.cfg.Rate, d.source())
		}
	}
}

// Forward implements Layer. Masks are drawn sequentially so a seeded source
// gives reproducible masks; applying them runs in parallel.
func (d *Dropout) Forward() error {
	if d.out == nil {
		return notInitialized("dropout")
	}
	if !d.cfg.StaticMask {
		d.drawMask()
	}
	in, out, mask := d.in.Value, d.out.Value, d.mask
	parallel.For(len(in), func(i int) {
		for ch := range in[i] {
			multiply(out[i][ch].Data(), in[i][ch].Data(), mask[i][ch].Data())
		}
	}, d.cfg.Workers)
	return nil
}

// Backward implements Layer: the gradient is masked by the last forward mask.
func (d *Dropout) Backward() error {
	if d.out == nil {
		return notInitialized("dropout")
	}
	if d.in.Grad == nil {
		return nil
	}
	dst, grad, mask := d.in.Grad, d.out.Grad, d.mask
	parallel.For(len(grad), func(i int) {
		for ch := range grad[i] {
			multiply(dst[i][ch].Data(), grad[i][ch].Data(), mask[i][ch].Data())
		}
	}, d.cfg.Workers)
	return nil
}

// FlatDropout is the flat-batch variant of Dropout.
type FlatDropout struct {
	dropoutRand

	cfg  DropoutConfig
	in   *FlatPort
	out  *FlatPort
	mask *tensor.Matrix
}

// NewFlatDropout creates a flat-batch dropout layer.
func NewFlatDropout(cfg DropoutConfig) (*FlatDropout, error) {
	if err := cfg.validate("flat_dropout"); err != nil {
		return nil, err
	}
	d := &FlatDropout{cfg: cfg}
	d.src = cfg.Source
	return d, nil
}

// Kind implements Layer.
func (d *FlatDropout) Kind() Kind { return KindFlatDropout }

// Rate returns the drop probability.
func (d *FlatDropout) Rate() float32 { return d.cfg.Rate }

// Mask returns the mask applied by the last forward pass.
func (d *FlatDropout) Mask() *tensor.Matrix { return d.mask }

// ConnectFlat implements FlatConsumer.
func (d *FlatDropout) ConnectFlat(in *FlatPort) { d.in = in }

// FlatOutput implements FlatProducer.
func (d *FlatDropout) FlatOutput() *FlatPort { return d.out }

// Init implements Layer.
func (d *FlatDropout) Init() error {
	rows, cols, err := flatInputShape("flat_dropout", d.in)
	if err != nil {
		return err
	}
	d.out = newFlatPort(rows, cols)

	switch {
	case d.cfg.StaticMask && d.cfg.FlatMask != nil:
		if !d.cfg.FlatMask.SameShape(d.in.Value) {
			return tensor.Mismatch("flat_dropout", "static mask %v, input %v", d.cfg.FlatMask.Shape(), d.in.Value.Shape())
		}
		d.mask = d.cfg.FlatMask
	default:
		d.mask = tensor.NewMatrix(rows, cols)
		if d.cfg.StaticMask {
			randomMask(d.mask.Data(), d.cfg.Rate, d.source())
		}
	}
	return nil
}

// Forward implements Layer.
func (d *FlatDropout) Forward() error {
	if d.out == nil {
		return notInitialized("flat_dropout")
	}
	if !d.cfg.StaticMask {
		randomMask(d.mask.Data(), d.cfg.Rate, d.source())
	}
	multiply(d.out.Value.Data(), d.in.Value.Data(), d.mask.Data())
	return nil
}

// Backward implements Layer.
func (d *FlatDropout) Backward() error {
	if d.out == nil {
		return notInitialized("flat_dropout")
	}
	if d.in.Grad != nil {
		multiply(d.in.Grad.Data(), d.out.Grad.Data(), d.mask.Data())
	}
	return nil
}

func multiply(dst, a, b []float32) {
	for i, v := range a {
		dst[i] = v * b[i]
	}
}
