// Package nn implements the layers of a feed-forward convolutional network and
// the Network graph that wires and drives them.
//
// This package provides:
//   - Layer interface: Init, Forward and Backward over owned buffers
//   - Trainable: layers with parameters updated by momentum SGD
//   - Conv, Pool, Activation, Dropout, Concat, FC and SoftmaxLoss layers
//   - Network: an ordered layer chain with forward/backward/update passes
//
// Layers exchange data through ports. Every layer owns its output port
// (values and the gradient written back by its consumer) and holds a
// reference to its predecessor's port as input. The first layer's input port
// carries no gradient buffer, so no input gradient is computed for it.
package nn

import (
	"github.com/born-ml/convnet/internal/optim"
	"github.com/born-ml/convnet/internal/tensor"
)

// Kind tags a layer variant. Adjacent kinds decide whether the image-batch or
// the flat-batch linking convention applies.
type Kind uint8

// Layer kinds.
const (
	KindConv Kind = iota
	KindPool
	KindActivation
	KindDropout
	KindConcat
	KindFC
	KindFlatActivation
	KindFlatDropout
	KindLoss
)

var kindNames = [...]string{
	KindConv:           "conv",
	KindPool:           "pool",
	KindActivation:     "activation",
	KindDropout:        "dropout",
	KindConcat:         "concat",
	KindFC:             "fc",
	KindFlatActivation: "flat_activation",
	KindFlatDropout:    "flat_dropout",
	KindLoss:           "loss",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsDropout reports whether k is one of the dropout kinds.
func (k Kind) IsDropout() bool {
	return k == KindDropout || k == KindFlatDropout
}

// ImagePort carries an image batch between two layers.
//
// Value is written by the producer during Forward. Grad, when non-nil, is
// written by the consumer during Backward and read by the producer.
type ImagePort struct {
	Value tensor.ImageBatch
	Grad  tensor.ImageBatch
}

// FlatPort carries a batch × features matrix between two layers.
type FlatPort struct {
	Value *tensor.Matrix
	Grad  *tensor.Matrix
}

func newImagePort(n, channels, rows, cols int) *ImagePort {
	return &ImagePort{
		Value: tensor.NewImageBatch(n, channels, rows, cols),
		Grad:  tensor.NewImageBatch(n, channels, rows, cols),
	}
}

func newFlatPort(rows, cols int) *FlatPort {
	return &FlatPort{
		Value: tensor.NewMatrix(rows, cols),
		Grad:  tensor.NewMatrix(rows, cols),
	}
}

// Layer is the capability set shared by every layer variant.
//
// Lifecycle: construct, connect the input port, Init (allocates outputs from
// the input shape), then any number of Forward/Backward cycles.
type Layer interface {
	// Kind returns the variant tag.
	Kind() Kind

	// Init validates the connected input and allocates owned buffers. It may
	// be called again after re-wiring; trainable layers keep their
	// parameters when the geometry is unchanged.
	Init() error

	// Forward computes the output port's Value from the input port's Value.
	Forward() error

	// Backward reads the output port's Grad and writes the input port's
	// Grad (when present) and any parameter gradients.
	Backward() error
}

// Trainable is implemented by layers with learnable parameters.
type Trainable interface {
	Layer

	// Update applies one momentum-SGD step using the reduced gradients.
	Update() error

	// ScaleLearningRate anneals the layer's learning rates.
	ScaleLearningRate()

	// Parameters returns weights (one per group) followed by the bias.
	Parameters() []*optim.Parameter

	// RegularizationCost returns 0.5 * weightDecay * Σ w² over the weights.
	RegularizationCost() float64
}

// ImageConsumer is implemented by layers whose input is an image batch.
type ImageConsumer interface {
	ConnectImage(in *ImagePort)
}

// ImageProducer is implemented by layers whose output is an image batch.
type ImageProducer interface {
	ImageOutput() *ImagePort
}

// FlatConsumer is implemented by layers whose input is a flat batch.
type FlatConsumer interface {
	ConnectFlat(in *FlatPort)
}

// FlatProducer is implemented by layers whose output is a flat batch.
type FlatProducer interface {
	FlatOutput() *FlatPort
}
