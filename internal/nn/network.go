package nn

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/born-ml/convnet/internal/optim"
	"github.com/born-ml/convnet/internal/parallel"
	"github.com/born-ml/convnet/internal/tensor"
)

// parallelAware layers split their work across workers. The network hands
// its own configuration to layers whose configuration is the zero value.
type parallelAware interface {
	useParallel(cfg parallel.Config)
	parallelConfig() parallel.Config
}

// randomAware layers draw random numbers (weight init, dropout masks). The
// network's source is used by layers that were not given one.
type randomAware interface {
	useSource(src rand.Source)
}

// Network is an ordered chain of layers trained with momentum SGD.
//
// Example:
//
//	net := nn.NewNetwork(nn.WithSeed(1))
//	net.Add(conv, relu, pool, concat, fc, nn.NewSoftmaxLoss())
//	net.SetImageInput(tensor.NewImageBatch(32, 1, 28, 28))
//	if err := net.Build(); err != nil { ... }
//
//	copy inputs into net.ImageInput(), then
//	net.SetLabels(labels)
//	net.Forward(); net.Backward(); net.Update()
type Network struct {
	layers  []Layer
	src     rand.Source
	workers parallel.Config

	image  *ImagePort // network input when the first layer takes images
	flat   *FlatPort  // network input when the first layer takes a flat batch
	loss   *SoftmaxLoss
	labels []int
	built  bool
}

// Option configures a Network.
type Option func(*Network)

// WithSeed seeds the network's random source deterministically.
func WithSeed(seed uint64) Option {
	return func(n *Network) { n.src = NewSource(seed) }
}

// WithSource injects the random source shared by layers without their own.
func WithSource(src rand.Source) Option {
	return func(n *Network) { n.src = src }
}

// WithParallel sets the worker configuration given to layers that were not
// configured explicitly.
func WithParallel(cfg parallel.Config) Option {
	return func(n *Network) { n.workers = cfg }
}

// NewNetwork creates an empty network. Without WithSeed or WithSource the
// random source is seeded from the operating system.
func NewNetwork(opts ...Option) *Network {
	n := &Network{workers: parallel.DefaultConfig()}
	for _, opt := range opts {
		opt(n)
	}
	if n.src == nil {
		n.src = NewEntropySource()
	}
	return n
}

// Add appends layers. The network must be built again afterwards.
func (n *Network) Add(layers ...Layer) *Network {
	n.layers = append(n.layers, layers...)
	n.built = false
	return n
}

// SetImageInput makes batch the network input. The batch is referenced, not
// copied: writing into it between passes feeds new data.
func (n *Network) SetImageInput(batch tensor.ImageBatch) error {
	if err := batch.Validate(); err != nil {
		return configError("network", "input", "%v", err)
	}
	n.image, n.flat = &ImagePort{Value: batch}, nil
	n.built = false
	return nil
}

// SetFlatInput makes m (batch × features) the network input.
func (n *Network) SetFlatInput(m *tensor.Matrix) error {
	if m == nil || m.Rows() == 0 || m.Cols() == 0 {
		return configError("network", "input", "empty flat input")
	}
	n.image, n.flat = nil, &FlatPort{Value: m}
	n.built = false
	return nil
}

// ImageInput returns the image-batch input, nil for flat-input networks.
func (n *Network) ImageInput() tensor.ImageBatch {
	if n.image == nil {
		return nil
	}
	return n.image.Value
}

// FlatInput returns the flat input, nil for image-input networks.
func (n *Network) FlatInput() *tensor.Matrix {
	if n.flat == nil {
		return nil
	}
	return n.flat.Value
}

// BatchSize returns the number of samples per pass, 0 without input.
func (n *Network) BatchSize() int {
	switch {
	case n.image != nil:
		return len(n.image.Value)
	case n.flat != nil:
		return n.flat.Value.Rows()
	}
	return 0
}

// SetLabels sets the class labels used by the loss layer on the next pass.
func (n *Network) SetLabels(labels []int) {
	n.labels = labels
	if n.loss != nil {
		n.loss.SetLabels(labels)
	}
}

// Source returns the network's random source.
func (n *Network) Source() rand.Source { return n.src }

// Layers returns the layers in order.
func (n *Network) Layers() []Layer {
	out := make([]Layer, len(n.layers))
	copy(out, n.layers)
	return out
}

// Built reports whether Build succeeded since the last change.
func (n *Network) Built() bool { return n.built }

// Build wires every layer to its predecessor's output and initializes it.
//
// An image-batch output may only feed an ImageConsumer and a flat output a
// FlatConsumer; anything else, or a layer after the loss, is a ConfigError.
// The network input port has no gradient buffer, so the first layer never
// computes an input gradient.
func (n *Network) Build() error {
	n.built = false
	if len(n.layers) == 0 {
		return ErrNetworkEmpty
	}
	if n.image == nil && n.flat == nil {
		return configError("network", "input", "no input set")
	}

	img, flat := n.image, n.flat
	n.loss = nil
	for i, l := range n.layers {
		name := n.layerName(i)
		if n.loss != nil {
			return configError(name, "", "layer follows the loss layer")
		}
		if p, ok := l.(parallelAware); ok && p.parallelConfig() == (parallel.Config{}) {
			p.useParallel(n.workers)
		}
		if r, ok := l.(randomAware); ok {
			r.useSource(n.src)
		}

		if img != nil {
			c, ok := l.(ImageConsumer)
			if !ok {
				return configError(name, "", "%s layer cannot consume an image batch", l.Kind())
			}
			c.ConnectImage(img)
		} else {
			c, ok := l.(FlatConsumer)
			if !ok {
				return configError(name, "", "%s layer cannot consume a flat batch", l.Kind())
			}
			c.ConnectFlat(flat)
		}
		if err := l.Init(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		img, flat = nil, nil
		switch p := l.(type) {
		case ImageProducer:
			img = p.ImageOutput()
		case FlatProducer:
			flat = p.FlatOutput()
		case *SoftmaxLoss:
			n.loss = p
			p.SetLabels(n.labels)
		}
	}
	n.built = true
	return nil
}

// layerName returns "layer{i}.{kind}", where i counts the layers before
// position pos that are not dropout layers. Names therefore survive
// RemoveDropout.
func (n *Network) layerName(pos int) string {
	i := 0
	for _, l := range n.layers[:pos] {
		if !l.Kind().IsDropout() {
			i++
		}
	}
	return fmt.Sprintf("layer%d.%s", i, n.layers[pos].Kind())
}

// Forward runs every layer in order.
func (n *Network) Forward() error {
	if !n.built {
		return ErrNetworkNotBuilt
	}
	for i, l := range n.layers {
		if err := l.Forward(); err != nil {
			return fmt.Errorf("%s: forward: %w", n.layerName(i), err)
		}
	}
	return nil
}

// Backward runs every layer in reverse order. The last layer must be the
// loss layer, which seeds the gradient.
func (n *Network) Backward() error {
	if !n.built {
		return ErrNetworkNotBuilt
	}
	if n.loss == nil {
		return configError("network", "", "backward needs a loss layer")
	}
	for i := len(n.layers) - 1; i >= 0; i-- {
		if err := n.layers[i].Backward(); err != nil {
			return fmt.Errorf("%s: backward: %w", n.layerName(i), err)
		}
	}
	return nil
}

// Update applies the momentum-SGD step of every trainable layer.
func (n *Network) Update() error {
	if !n.built {
		return ErrNetworkNotBuilt
	}
	for i, l := range n.layers {
		t, ok := l.(Trainable)
		if !ok {
			continue
		}
		if err := t.Update(); err != nil {
			return fmt.Errorf("%s: update: %w", n.layerName(i), err)
		}
	}
	return nil
}

// ScaleLearningRate anneals the learning rates of every trainable layer.
func (n *Network) ScaleLearningRate() {
	for _, t := range n.trainables() {
		t.ScaleLearningRate()
	}
}

// LearningRate returns the weight learning rate of the first trainable
// layer, or 0 when there is none.
func (n *Network) LearningRate() float32 {
	for _, l := range n.layers {
		if o, ok := l.(optimized); ok && o.Optimizer() != nil {
			return o.Optimizer().GetLR()
		}
	}
	return 0
}

// RemoveDropout drops every dropout layer and, if the network was built,
// rebuilds the whole chain. Trainable layers keep their weights.
func (n *Network) RemoveDropout() error {
	kept := n.layers[:0]
	for _, l := range n.layers {
		if !l.Kind().IsDropout() {
			kept = append(kept, l)
		}
	}
	clear(n.layers[len(kept):])
	n.layers = kept
	if !n.built {
		return nil
	}
	return n.Build()
}

// Loss returns the cross-entropy of the last forward pass.
func (n *Network) Loss() float64 {
	if n.loss == nil {
		return 0
	}
	return n.loss.Loss()
}

// RowLosses returns the per-sample cross-entropy of the last forward pass.
func (n *Network) RowLosses() []float64 {
	if n.loss == nil {
		return nil
	}
	return n.loss.RowLosses()
}

// ObjectiveCost returns the loss plus the weight-decay cost of every
// trainable layer.
func (n *Network) ObjectiveCost() float64 {
	cost := n.Loss()
	for _, t := range n.trainables() {
		cost += t.RegularizationCost()
	}
	return cost
}

// Output returns the class probabilities of the last forward pass, nil when
// the network has no loss layer.
func (n *Network) Output() *tensor.Matrix {
	if n.loss == nil {
		return nil
	}
	return n.loss.Probabilities()
}

// Predictions returns the arg-max class per sample.
func (n *Network) Predictions() []int {
	if n.loss == nil {
		return nil
	}
	return n.loss.Predictions()
}

// Accuracy returns the fraction of correct predictions against labels.
func (n *Network) Accuracy(labels []int) float64 {
	if n.loss == nil {
		return 0
	}
	return n.loss.Accuracy(labels)
}

// NumParams returns the number of learnable scalars.
func (n *Network) NumParams() int {
	total := 0
	for _, t := range n.trainables() {
		for _, p := range t.Parameters() {
			total += p.NumElements()
		}
	}
	return total
}

// ModelSize returns the parameter storage in MB.
func (n *Network) ModelSize() float64 {
	return float64(n.NumParams()) * 4 / (1024 * 1024)
}

func (n *Network) trainables() []Trainable {
	var out []Trainable
	for _, l := range n.layers {
		if t, ok := l.(Trainable); ok {
			out = append(out, t)
		}
	}
	return out
}

// namedParameters returns every parameter with its name
// "layer{i}.{kind}.{param}".
func (n *Network) namedParameters() ([]string, []*optim.Parameter) {
	var (
		names  []string
		params []*optim.Parameter
	)
	for i, l := range n.layers {
		t, ok := l.(Trainable)
		if !ok {
			continue
		}
		prefix := n.layerName(i)
		for _, p := range t.Parameters() {
			names = append(names, prefix+"."+p.Name)
			params = append(params, p)
		}
	}
	return names, params
}

// StateDict returns every parameter value by name
// ("layer{i}.{kind}.weight.g{g}", "layer{i}.{kind}.bias"). The matrices are
// not copied.
func (n *Network) StateDict() map[string]*tensor.Matrix {
	names, params := n.namedParameters()
	state := make(map[string]*tensor.Matrix, len(names))
	for i, name := range names {
		state[name] = params[i].Value
	}
	return state
}

// LoadStateDict copies parameter values from state. Every parameter of the
// built network must be present with a matching shape.
func (n *Network) LoadStateDict(state map[string]*tensor.Matrix) error {
	if !n.built {
		return ErrNetworkNotBuilt
	}
	names, params := n.namedParameters()
	for i, name := range names {
		m, ok := state[name]
		if !ok {
			return fmt.Errorf("%s: %w", name, ErrMissingParameter)
		}
		if err := params[i].Value.CopyFrom(m); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// optimized is implemented by layers that own an SGD updater.
type optimized interface {
	Trainable
	Optimizer() *optim.SGD
}

// OptimizerStateDict returns the momentum buffers keyed
// "layer{i}.{kind}.moment.{param}".
func (n *Network) OptimizerStateDict() map[string]*tensor.Matrix {
	state := make(map[string]*tensor.Matrix)
	for i, l := range n.layers {
		o, ok := l.(optimized)
		if !ok || o.Optimizer() == nil {
			continue
		}
		prefix := n.layerName(i) + "."
		for k, m := range o.Optimizer().StateDict(o.Parameters()...) {
			state[prefix+k] = m
		}
	}
	return state
}

// LoadOptimizerStateDict restores momentum buffers. Missing entries leave the
// corresponding buffers untouched.
func (n *Network) LoadOptimizerStateDict(state map[string]*tensor.Matrix) error {
	if !n.built {
		return ErrNetworkNotBuilt
	}
	for i, l := range n.layers {
		o, ok := l.(optimized)
		if !ok || o.Optimizer() == nil {
			continue
		}
		name := n.layerName(i)
		sub := make(map[string]*tensor.Matrix)
		for k, m := range state {
			if rest, found := strings.CutPrefix(k, name+"."); found {
				sub[rest] = m
			}
		}
		if err := o.Optimizer().LoadStateDict(sub, o.Parameters()...); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
