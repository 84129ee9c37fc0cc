// Package optim implements the parameter update rules used by the trainable
// layers.
//
// Layers own their parameters (value, momentum and gradient buffers) and call
// an Optimizer once per iteration, after all gradient accumulators have been
// reduced into Parameter.Grad.
//
// Example:
//
//	sgd, err := optim.NewSGD(geometry.DefaultLearnGeometry())
//	if err != nil {
//	    return err
//	}
//	w := optim.NewParameter("fc.weight", optim.RoleWeight, 784, 10)
//	b := optim.NewParameter("fc.bias", optim.RoleBias, 1, 10)
//	// ... backward pass fills w.Grad and b.Grad ...
//	if err := sgd.Step(w, b); err != nil {
//	    return err
//	}
package optim

import "github.com/born-ml/convnet/internal/tensor"

// Optimizer is the update rule interface.
type Optimizer interface {
	// Step applies one update to every parameter using its Grad buffer.
	Step(params ...*Parameter) error

	// ScaleLearningRate anneals the learning rates.
	ScaleLearningRate()

	// GetLR returns the current weight learning rate.
	GetLR() float32
}

// Role selects which set of hyper parameters applies to a Parameter.
type Role uint8

// Parameter roles.
const (
	RoleWeight Role = iota
	RoleBias
)

// String implements fmt.Stringer.
func (r Role) String() string {
	if r == RoleBias {
		return "bias"
	}
	return "weight"
}

// Parameter is a learnable matrix with its momentum and gradient buffers.
// All three buffers have the same shape.
type Parameter struct {
	Name   string
	Role   Role
	Value  *tensor.Matrix
	Moment *tensor.Matrix
	Grad   *tensor.Matrix
}

// NewParameter allocates zero-filled value, moment and gradient buffers.
func NewParameter(name string, role Role, rows, cols int) *Parameter {
	return &Parameter{
		Name:   name,
		Role:   role,
		Value:  tensor.NewMatrix(rows, cols),
		Moment: tensor.NewMatrix(rows, cols),
		Grad:   tensor.NewMatrix(rows, cols),
	}
}

// NumElements returns the number of learnable scalars.
func (p *Parameter) NumElements() int {
	return p.Value.Len()
}

// ZeroGrad clears the gradient buffer.
func (p *Parameter) ZeroGrad() {
	p.Grad.Zero()
}

func (p *Parameter) validate() error {
	if p.Value == nil || p.Moment == nil || p.Grad == nil {
		return tensor.Mismatch("optim", "parameter %q has nil buffers", p.Name)
	}
	if !p.Value.SameShape(p.Moment) || !p.Value.SameShape(p.Grad) {
		return tensor.Mismatch("optim", "parameter %q: value %v, moment %v, grad %v",
			p.Name, p.Value.Shape(), p.Moment.Shape(), p.Grad.Shape())
	}
	return nil
}

// ZeroGrad clears the gradient of every parameter.
func ZeroGrad(params ...*Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
