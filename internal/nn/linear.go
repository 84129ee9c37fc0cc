package nn

import (
	"math/rand/v2"

	"github.com/born-ml/convnet/internal/geometry"
	"github.com/born-ml/convnet/internal/linalg"
	"github.com/born-ml/convnet/internal/optim"
)

// FCConfig configures a fully-connected layer.
type FCConfig struct {
	// Weight: NumWeights output units over WeightChns*Height*Width input
	// features. Height and Width default to 1.
	Weight geometry.WeightGeometry
	Learn  geometry.LearnGeometry

	// SkipInputGrad disables the input gradient; the predecessor then
	// receives zeros.
	SkipInputGrad bool

	NoBias bool
	Source rand.Source // weight initialization; nil uses the network's source
}

// FC is a fully connected layer: output = input × weight + bias.
//
// Input shape:  [batch, in_features]
// Weight shape: [in_features, out_features]
// Bias shape:   [1, out_features] or nil
// Output shape: [batch, out_features]
type FC struct {
	learnable

	cfg FCConfig
	in  *FlatPort
	out *FlatPort
}

// NewFC creates a fully-connected layer. Parameters are allocated by Init.
func NewFC(cfg FCConfig) (*FC, error) {
	if cfg.Weight.Width == 0 && cfg.Weight.Height == 0 {
		cfg.Weight.Width, cfg.Weight.Height = 1, 1
	}
	if cfg.Weight.NumGroups > 1 {
		return nil, configError("fc", "Weight.NumGroups", "fully-connected layers are not grouped")
	}
	if err := cfg.Weight.Validate(); err != nil {
		return nil, configError("fc", "Weight", "%v", err)
	}
	if err := cfg.Learn.Validate(); err != nil {
		return nil, configError("fc", "Learn", "%v", err)
	}
	l := &FC{cfg: cfg}
	l.src = cfg.Source
	return l, nil
}

// Kind implements Layer.
func (l *FC) Kind() Kind { return KindFC }

// Config returns the layer configuration.
func (l *FC) Config() FCConfig { return l.cfg }

// InFeatures returns the expected input width.
func (l *FC) InFeatures() int { return l.cfg.Weight.KernelSize() }

// OutFeatures returns the number of output units.
func (l *FC) OutFeatures() int { return l.cfg.Weight.NumWeights }

// Weight returns the weight parameter, nil before Init.
func (l *FC) Weight() *optim.Parameter {
	if len(l.weights) == 0 {
		return nil
	}
	return l.weights[0]
}

// Bias returns the bias parameter, nil before Init or with NoBias.
func (l *FC) Bias() *optim.Parameter { return l.bias }

// ConnectFlat implements FlatConsumer.
func (l *FC) ConnectFlat(in *FlatPort) { l.in = in }

// FlatOutput implements FlatProducer.
func (l *FC) FlatOutput() *FlatPort { return l.out }

// Init implements Layer.
func (l *FC) Init() error {
	rows, cols, err := flatInputShape("fc", l.in)
	if err != nil {
		return err
	}
	if cols != l.InFeatures() {
		return configError("fc", "Weight.WeightChns", "input has %d features, want %d", cols, l.InFeatures())
	}
	biasRows := 1
	if l.cfg.NoBias {
		biasRows = 0
	}
	if err := l.allocate(l.cfg.Learn, 1, l.InFeatures(), l.OutFeatures(), l.cfg.Weight.InitWeightScale, biasRows, l.OutFeatures()); err != nil {
		return configError("fc", "Learn", "%v", err)
	}
	l.out = newFlatPort(rows, l.OutFeatures())
	return nil
}

// Forward implements Layer.
func (l *FC) Forward() error {
	if l.out == nil {
		return notInitialized("fc")
	}
	if err := linalg.MatMul(l.out.Value, l.in.Value, l.weights[0].Value, false, false); err != nil {
		return err
	}
	if l.bias != nil {
		return linalg.AddRowVector(l.out.Value, l.bias.Value)
	}
	return nil
}

// Backward implements Layer.
//
//	dBias   = Σ_rows delta
//	dWeight = inputᵗ × delta
//	dInput  = delta × weightᵗ
func (l *FC) Backward() error {
	if l.out == nil {
		return notInitialized("fc")
	}
	delta := l.out.Grad
	if l.bias != nil {
		l.bias.ZeroGrad()
		if err := linalg.SumRows(l.bias.Grad, delta); err != nil {
			return err
		}
	}
	w := l.weights[0]
	if err := linalg.MatMul(w.Grad, l.in.Value, delta, true, false); err != nil {
		return err
	}
	if l.in.Grad == nil {
		return nil
	}
	if l.cfg.SkipInputGrad {
		l.in.Grad.Zero()
		return nil
	}
	return linalg.MatMul(l.in.Grad, delta, w.Value, false, true)
}

var _ Trainable = (*FC)(nil)
