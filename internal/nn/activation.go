package nn

import (
	"strings"

	"github.com/born-ml/convnet/internal/parallel"
	"github.com/chewxy/math32"
)

// ActivationFunc is a pointwise nonlinearity with its derivative.
//
// Backward receives the forward output, not the input: every supported
// function has a derivative expressible from its output.
type ActivationFunc interface {
	// Name returns the canonical name ("Linear", "Sigmoid", "ReLU", "BReLU").
	Name() string

	// Forward writes f(src) into dst. dst and src have equal length.
	Forward(dst, src []float32)

	// Backward writes grad * f'(x) into dst, where out = f(x).
	Backward(dst, out, grad []float32)
}

// NewActivationFunc returns the function registered under name (case
// insensitive). bound is the ceiling of BReLU and must be positive for it.
func NewActivationFunc(name string, bound float32) (ActivationFunc, error) {
	switch strings.ToLower(name) {
	case "linear":
		return Linear{}, nil
	case "sigmoid":
		return Sigmoid{}, nil
	case "relu":
		return ReLU{}, nil
	case "brelu":
		if !(bound > 0) {
			return nil, configError("activation", "Bound", "BReLU needs a positive bound, got %v", bound)
		}
		return BReLU{Bound: bound}, nil
	default:
		return nil, configError("activation", "Name", "unknown activation %q (want Linear, Sigmoid, ReLU or BReLU)", name)
	}
}

// Linear is the identity.
type Linear struct{}

// Name implements ActivationFunc.
func (Linear) Name() string { return "Linear" }

// Forward implements ActivationFunc.
func (Linear) Forward(dst, src []float32) { copy(dst, src) }

// Backward implements ActivationFunc.
func (Linear) Backward(dst, _, grad []float32) { copy(dst, grad) }

// Sigmoid is 1/(1+e^-x).
type Sigmoid struct{}

// Name implements ActivationFunc.
func (Sigmoid) Name() string { return "Sigmoid" }

// Forward implements ActivationFunc.
func (Sigmoid) Forward(dst, src []float32) {
	for i, x := range src {
		dst[i] = 1 / (1 + math32.Exp(-x))
	}
}

// Backward implements ActivationFunc: grad * out * (1 - out).
func (Sigmoid) Backward(dst, out, grad []float32) {
	for i, y := range out {
		dst[i] = grad[i] * y * (1 - y)
	}
}

// ReLU is max(x, 0). NaN inputs pass through unchanged.
type ReLU struct{}

// Name implements ActivationFunc.
func (ReLU) Name() string { return "ReLU" }

// Forward implements ActivationFunc.
func (ReLU) Forward(dst, src []float32) {
	for i, x := range src {
		if x < 0 {
			x = 0
		}
		dst[i] = x
	}
}

// Backward implements ActivationFunc: the gradient flows where out > 0.
func (ReLU) Backward(dst, out, grad []float32) {
	for i, y := range out {
		if y > 0 {
			dst[i] = grad[i]
		} else {
			dst[i] = 0
		}
	}
}

// BReLU is min(max(x, 0), Bound). +Inf saturates at Bound, NaN passes through.
type BReLU struct {
	Bound float32
}

// Name implements ActivationFunc.
func (BReLU) Name() string { return "BReLU" }

// Forward implements ActivationFunc.
func (b BReLU) Forward(dst, src []float32) {
	for i, x := range src {
		if x < 0 {
			x = 0
		}
		if x > b.Bound {
			x = b.Bound
		}
		dst[i] = x
	}
}

// Backward implements ActivationFunc: the gradient flows where
// 0 < out < Bound.
func (b BReLU) Backward(dst, out, grad []float32) {
	for i, y := range out {
		if y > 0 && y < b.Bound {
			dst[i] = grad[i]
		} else {
			dst[i] = 0
		}
	}
}

// ActivationConfig configures Activation and FlatActivation layers.
type ActivationConfig struct {
	Name    string          // Linear, Sigmoid, ReLU or BReLU
	Bound   float32         // BReLU ceiling
	Workers parallel.Config // zero value runs sequentially
}

// Activation applies an ActivationFunc to every map of an image batch.
type Activation struct {
	cfg   ActivationConfig
	fn    ActivationFunc
	in    *ImagePort
	out   *ImagePort
	ready bool
}

// NewActivation creates an image-batch activation layer.
func NewActivation(cfg ActivationConfig) (*Activation, error) {
	fn, err := NewActivationFunc(cfg.Name, cfg.Bound)
	if err != nil {
		return nil, err
	}
	return &Activation{cfg: cfg, fn: fn}, nil
}

// Kind implements Layer.
func (a *Activation) Kind() Kind { return KindActivation }

// Func returns the activation function.
func (a *Activation) Func() ActivationFunc { return a.fn }

// ConnectImage implements ImageConsumer.
func (a *Activation) ConnectImage(in *ImagePort) { a.in = in }

// ImageOutput implements ImageProducer.
func (a *Activation) ImageOutput() *ImagePort { return a.out }

func (a *Activation) useParallel(cfg parallel.Config) { a.cfg.Workers = cfg }

func (a *Activation) parallelConfig() parallel.Config { return a.cfg.Workers }

// Init implements Layer.
func (a *Activation) Init() error {
	shape, err := imageInputShape("activation", a.in)
	if err != nil {
		return err
	}
	a.out = newImagePort(shape[0], shape[1], shape[2], shape[3])
	a.ready = true
	return nil
}

// Forward implements Layer.
func (a *Activation) Forward() error {
	if !a.ready {
		return notInitialized("activation")
	}
	in, out := a.in.Value, a.out.Value
	parallel.For(len(in), func(i int) {
		for ch := range in[i] {
			a.fn.Forward(out[i][ch].Data(), in[i][ch].Data())
		}
	}, a.cfg.Workers)
	return nil
}

// Backward implements Layer.
func (a *Activation) Backward() error {
	if !a.ready {
		return notInitialized("activation")
	}
	if a.in.Grad == nil {
		return nil
	}
	dst, out, grad := a.in.Grad, a.out.Value, a.out.Grad
	parallel.For(len(out), func(i int) {
		for ch := range out[i] {
			a.fn.Backward(dst[i][ch].Data(), out[i][ch].Data(), grad[i][ch].Data())
		}
	}, a.cfg.Workers)
	return nil
}

// FlatActivation applies an ActivationFunc to a flat batch.
type FlatActivation struct {
	cfg ActivationConfig
	fn  ActivationFunc
	in  *FlatPort
	out *FlatPort
}

// NewFlatActivation creates a flat-batch activation layer.
func NewFlatActivation(cfg ActivationConfig) (*FlatActivation, error) {
	fn, err := NewActivationFunc(cfg.Name, cfg.Bound)
	if err != nil {
		return nil, err
	}
	return &FlatActivation{cfg: cfg, fn: fn}, nil
}

// Kind implements Layer.
func (a *FlatActivation) Kind() Kind { return KindFlatActivation }

// Func returns the activation function.
func (a *FlatActivation) Func() ActivationFunc { return a.fn }

// ConnectFlat implements FlatConsumer.
func (a *FlatActivation) ConnectFlat(in *FlatPort) { a.in = in }

// FlatOutput implements FlatProducer.
func (a *FlatActivation) FlatOutput() *FlatPort { return a.out }

// Init implements Layer.
func (a *FlatActivation) Init() error {
	rows, cols, err := flatInputShape("flat_activation", a.in)
	if err != nil {
		return err
	}
	a.out = newFlatPort(rows, cols)
	return nil
}

// Forward implements Layer.
func (a *FlatActivation) Forward() error {
	if a.out == nil {
		return notInitialized("flat_activation")
	}
	a.fn.Forward(a.out.Value.Data(), a.in.Value.Data())
	return nil
}

// Backward implements Layer.
func (a *FlatActivation) Backward() error {
	if a.out == nil {
		return notInitialized("flat_activation")
	}
	if a.in.Grad != nil {
		a.fn.Backward(a.in.Grad.Data(), a.out.Value.Data(), a.out.Grad.Data())
	}
	return nil
}
