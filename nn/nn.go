// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand/v2"

	"github.com/born-ml/convnet/internal/geometry"
	"github.com/born-ml/convnet/internal/nn"
	"github.com/born-ml/convnet/internal/parallel"
	"github.com/born-ml/convnet/internal/tensor"
)

// Layer is one stage of a Network.
type Layer = nn.Layer

// Trainable is a layer with learnable parameters.
type Trainable = nn.Trainable

// Kind tags a layer variant.
type Kind = nn.Kind

// Layer kinds.
const (
	KindConv           = nn.KindConv
	KindPool           = nn.KindPool
	KindActivation     = nn.KindActivation
	KindDropout        = nn.KindDropout
	KindConcat         = nn.KindConcat
	KindFC             = nn.KindFC
	KindFlatActivation = nn.KindFlatActivation
	KindFlatDropout    = nn.KindFlatDropout
	KindLoss           = nn.KindLoss
)

// Errors returned by layers and networks.
var (
	ErrConfiguration    = nn.ErrConfiguration
	ErrNotInitialized   = nn.ErrNotInitialized
	ErrLabelOutOfRange  = nn.ErrLabelOutOfRange
	ErrNoLabels         = nn.ErrNoLabels
	ErrNetworkNotBuilt  = nn.ErrNetworkNotBuilt
	ErrNetworkEmpty     = nn.ErrNetworkEmpty
	ErrMissingParameter = nn.ErrMissingParameter
	ErrNotCheckpoint    = nn.ErrNotCheckpoint
)

// ConfigError describes an invalid layer or network configuration.
type ConfigError = nn.ConfigError

// Geometry

// WeightGeometry describes a weight bank (or a pooling window).
type WeightGeometry = geometry.WeightGeometry

// StrideGeometry is the step between windows.
type StrideGeometry = geometry.StrideGeometry

// PadGeometry is the zero padding around the input.
type PadGeometry = geometry.PadGeometry

// LearnGeometry holds SGD hyper parameters.
type LearnGeometry = geometry.LearnGeometry

// DefaultLearnGeometry returns the stock hyper parameters.
func DefaultLearnGeometry() LearnGeometry { return geometry.DefaultLearnGeometry() }

// UnitStride returns a stride of one in both directions.
func UnitStride() StrideGeometry { return geometry.UnitStride() }

// UniformPad pads every side by p.
func UniformPad(p int) PadGeometry { return geometry.Uniform(p) }

// Window returns a width × height pooling window.
func Window(width, height int) WeightGeometry { return geometry.Window(width, height) }

// ParallelConfig controls how many goroutines a layer uses.
type ParallelConfig = parallel.Config

// Sequential runs every layer on the caller's goroutine.
func Sequential() ParallelConfig { return parallel.Sequential() }

// Workers returns a configuration with n worker goroutines.
func Workers(n int) ParallelConfig { return parallel.WithWorkers(n) }

// Network

// Network is a linear chain of layers ending in an optional SoftmaxLoss.
type Network = nn.Network

// Option configures a Network.
type Option = nn.Option

// NewNetwork creates an empty network.
//
// Example:
//
//	net := nn.NewNetwork(nn.WithSeed(42), nn.WithParallel(nn.Workers(4)))
func NewNetwork(opts ...Option) *Network { return nn.NewNetwork(opts...) }

// WithSeed seeds every random draw of the network.
func WithSeed(seed uint64) Option { return nn.WithSeed(seed) }

// WithSource sets the random source shared by the layers.
func WithSource(src rand.Source) Option { return nn.WithSource(src) }

// WithParallel sets the worker configuration of layers that have none.
func WithParallel(cfg ParallelConfig) Option { return nn.WithParallel(cfg) }

// NewSource returns a deterministic source for seed.
func NewSource(seed uint64) rand.Source { return nn.NewSource(seed) }

// Layers

// ConvConfig configures a convolution layer.
type ConvConfig = nn.ConvConfig

// Conv is a grouped 2D convolution.
type Conv = nn.Conv

// NewConv creates a convolution layer.
func NewConv(cfg ConvConfig) (*Conv, error) { return nn.NewConv(cfg) }

// PoolConfig configures a pooling layer.
type PoolConfig = nn.PoolConfig

// Pool is a max or average pooling layer.
type Pool = nn.Pool

// PoolOperator reduces one window.
type PoolOperator = nn.PoolOperator

// NewPool creates a pooling layer.
func NewPool(cfg PoolConfig) (*Pool, error) { return nn.NewPool(cfg) }

// ActivationConfig configures activation layers.
type ActivationConfig = nn.ActivationConfig

// ActivationFunc is an elementwise nonlinearity.
type ActivationFunc = nn.ActivationFunc

// Activation applies an ActivationFunc to an image batch.
type Activation = nn.Activation

// FlatActivation applies an ActivationFunc to a flat batch.
type FlatActivation = nn.FlatActivation

// NewActivation creates an image-batch activation layer.
func NewActivation(cfg ActivationConfig) (*Activation, error) { return nn.NewActivation(cfg) }

// NewFlatActivation creates a flat-batch activation layer.
func NewFlatActivation(cfg ActivationConfig) (*FlatActivation, error) {
	return nn.NewFlatActivation(cfg)
}

// DropoutConfig configures dropout layers.
type DropoutConfig = nn.DropoutConfig

// Dropout drops entries of an image batch.
type Dropout = nn.Dropout

// FlatDropout drops entries of a flat batch.
type FlatDropout = nn.FlatDropout

// NewDropout creates an image-batch dropout layer.
func NewDropout(cfg DropoutConfig) (*Dropout, error) { return nn.NewDropout(cfg) }

// NewFlatDropout creates a flat-batch dropout layer.
func NewFlatDropout(cfg DropoutConfig) (*FlatDropout, error) { return nn.NewFlatDropout(cfg) }

// Concat flattens an image batch.
type Concat = nn.Concat

// NewConcat creates a concatenation layer.
func NewConcat() *Concat { return nn.NewConcat() }

// FCConfig configures a fully connected layer.
type FCConfig = nn.FCConfig

// FC is a fully connected layer.
type FC = nn.FC

// NewFC creates a fully connected layer.
func NewFC(cfg FCConfig) (*FC, error) { return nn.NewFC(cfg) }

// SoftmaxLoss is the softmax cross-entropy output layer.
type SoftmaxLoss = nn.SoftmaxLoss

// NewSoftmaxLoss creates the loss layer.
func NewSoftmaxLoss() *SoftmaxLoss { return nn.NewSoftmaxLoss() }

// Softmax writes the row-wise softmax of src into dst.
func Softmax(dst, src *tensor.Matrix) { nn.Softmax(dst, src) }

// Checkpoints

// Checkpoint is a training state snapshot.
type Checkpoint = nn.Checkpoint

// SaveCheckpoint writes the parameters and momenta of net to path.
func SaveCheckpoint(path string, net *Network, epoch int) error {
	return nn.SaveCheckpoint(path, net, epoch)
}

// LoadCheckpoint restores a checkpoint into a built network.
func LoadCheckpoint(path string, net *Network) (*Checkpoint, error) {
	return nn.LoadCheckpoint(path, net)
}
