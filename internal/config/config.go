// Package config describes a network in YAML and builds it.
//
//	seed: 1
//	workers: 4
//	input: {batch: 100, channels: 1, height: 28, width: 28}
//	layers:
//	  - type: conv
//	    weight: {weights: 20, channels: 1, width: 5, height: 5, init_scale: 0.01}
//	  - type: pool
//	    method: Max
//	    window: {width: 2, height: 2}
//	    stride: {row: 2, col: 2}
//	  - type: concat
//	  - type: fc
//	    weight: {weights: 10, channels: 20, width: 12, height: 12, init_scale: 0.01}
//	  - type: loss
//
// Activation and dropout entries become their flat variants after a concat
// layer (or when the input is flat).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/born-ml/convnet/internal/geometry"
	"github.com/born-ml/convnet/internal/nn"
	"github.com/born-ml/convnet/internal/parallel"
	"github.com/born-ml/convnet/internal/tensor"
	"gopkg.in/yaml.v3"
)

// Errors returned while building a network from a Model.
var (
	ErrUnknownLayer = errors.New("unknown layer type")
	ErrInvalidInput = errors.New("invalid input shape")
)

// Model is the top-level YAML document.
type Model struct {
	Seed    uint64  `yaml:"seed"`
	Workers int     `yaml:"workers"` // 0 uses one worker per CPU, 1 is sequential
	Input   Input   `yaml:"input"`
	Layers  []Layer `yaml:"layers"`
}

// Input is the shape of the network input. Features > 0 selects a flat
// input of batch × features; otherwise an image batch is used.
type Input struct {
	Batch    int `yaml:"batch"`
	Channels int `yaml:"channels"`
	Height   int `yaml:"height"`
	Width    int `yaml:"width"`
	Features int `yaml:"features"`
}

func (in Input) validate() error {
	switch {
	case in.Batch <= 0:
		return fmt.Errorf("%w: batch %d must be positive", ErrInvalidInput, in.Batch)
	case in.Features < 0:
		return fmt.Errorf("%w: features %d is negative", ErrInvalidInput, in.Features)
	case in.Features > 0:
		return nil
	case in.Channels <= 0 || in.Height <= 0 || in.Width <= 0:
		return fmt.Errorf("%w: image input %dx%dx%d must be positive in every dimension",
			ErrInvalidInput, in.Channels, in.Height, in.Width)
	}
	return nil
}

// Layer is one entry of the layers list. Only the fields relevant to Type
// are read.
type Layer struct {
	Type string `yaml:"type"`

	// conv, fc
	Weight        geometry.WeightGeometry `yaml:"weight"`
	Learn         *geometry.LearnGeometry `yaml:"learn"`
	SkipInputGrad bool                    `yaml:"skip_input_grad"`
	NoBias        bool                    `yaml:"no_bias"`

	// conv, pool
	Stride *geometry.StrideGeometry `yaml:"stride"`
	Pad    geometry.PadGeometry     `yaml:"pad"`

	// pool
	Method string                  `yaml:"method"`
	Window geometry.WeightGeometry `yaml:"window"`
	Scaled bool                    `yaml:"scaled"`

	// activation
	Name  string  `yaml:"name"`
	Bound float32 `yaml:"bound"`

	// dropout
	Rate   float32 `yaml:"rate"`
	Static bool    `yaml:"static"`
}

// Parse decodes a model document. Unknown fields are rejected.
func Parse(r io.Reader) (*Model, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Model
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return &m, nil
}

// Load parses the model file at path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Marshal encodes m as YAML.
func (m *Model) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

// Parallel returns the worker configuration for Workers.
func (m *Model) Parallel() parallel.Config {
	if m.Workers == 0 {
		return parallel.DefaultConfig()
	}
	return parallel.WithWorkers(m.Workers)
}

// Network creates the layers and a built network whose input buffer has the
// configured shape.
func (m *Model) Network() (*nn.Network, error) {
	if err := m.Input.validate(); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	net := nn.NewNetwork(nn.WithSeed(m.Seed), nn.WithParallel(m.Parallel()))

	flat := m.Input.Features > 0
	var err error
	if flat {
		err = net.SetFlatInput(tensor.NewMatrix(m.Input.Batch, m.Input.Features))
	} else {
		err = net.SetImageInput(tensor.NewImageBatch(m.Input.Batch, m.Input.Channels, m.Input.Height, m.Input.Width))
	}
	if err != nil {
		return nil, err
	}

	for i, def := range m.Layers {
		l, err := def.build(flat)
		if err != nil {
			return nil, fmt.Errorf("layers[%d] (%s): %w", i, def.Type, err)
		}
		if l.Kind() == nn.KindConcat {
			flat = true
		}
		net.Add(l)
	}
	if err := net.Build(); err != nil {
		return nil, err
	}
	return net, nil
}

func (def Layer) learn() geometry.LearnGeometry {
	if def.Learn != nil {
		return *def.Learn
	}
	return geometry.DefaultLearnGeometry()
}

func (def Layer) stride() geometry.StrideGeometry {
	if def.Stride != nil {
		return *def.Stride
	}
	return geometry.UnitStride()
}

func (def Layer) build(flat bool) (nn.Layer, error) {
	switch strings.ToLower(def.Type) {
	case "conv":
		return nn.NewConv(nn.ConvConfig{
			Weight:        def.Weight,
			Stride:        def.stride(),
			Pad:           def.Pad,
			Learn:         def.learn(),
			SkipInputGrad: def.SkipInputGrad,
		})
	case "pool":
		return nn.NewPool(nn.PoolConfig{
			Method:     def.Method,
			Window:     def.Window,
			Stride:     def.stride(),
			Pad:        def.Pad,
			ScaledMaps: def.Scaled,
		})
	case "activation":
		cfg := nn.ActivationConfig{Name: def.Name, Bound: def.Bound}
		if flat {
			return nn.NewFlatActivation(cfg)
		}
		return nn.NewActivation(cfg)
	case "dropout":
		cfg := nn.DropoutConfig{Rate: def.Rate, StaticMask: def.Static}
		if flat {
			return nn.NewFlatDropout(cfg)
		}
		return nn.NewDropout(cfg)
	case "concat":
		return nn.NewConcat(), nil
	case "fc":
		return nn.NewFC(nn.FCConfig{
			Weight:        def.Weight,
			Learn:         def.learn(),
			SkipInputGrad: def.SkipInputGrad,
			NoBias:        def.NoBias,
		})
	case "loss", "softmax":
		return nn.NewSoftmaxLoss(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownLayer, def.Type)
	}
}
