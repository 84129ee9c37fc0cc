package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/convnet/internal/geometry"
	"github.com/born-ml/convnet/internal/optim"
	"github.com/born-ml/convnet/internal/tensor"
)

// learnable holds the parameters and updater shared by Conv and FC.
//
// weights has one entry per group; bias may be nil. Each Parameter's Grad is
// the reduced gradient consumed by Update.
type learnable struct {
	sgd     *optim.SGD
	weights []*optim.Parameter
	bias    *optim.Parameter
	src     rand.Source
}

func (l *learnable) useSource(src rand.Source) {
	if l.src == nil {
		l.src = src
	}
}

func (l *learnable) source() rand.Source {
	if l.src == nil {
		l.src = NewEntropySource()
	}
	return l.src
}

// allocate creates the parameters unless existing ones already have the
// requested shapes, in which case weights and momenta are kept.
func (l *learnable) allocate(learn geometry.LearnGeometry, groups, rows, cols int, scale float32, biasRows, biasCols int) error {
	if l.sgd == nil {
		sgd, err := optim.NewSGD(learn)
		if err != nil {
			return err
		}
		l.sgd = sgd
	}
	if l.matches(groups, rows, cols, biasRows, biasCols) {
		return nil
	}

	l.weights = make([]*optim.Parameter, groups)
	for g := range l.weights {
		p := optim.NewParameter(fmt.Sprintf("weight.g%d", g), optim.RoleWeight, rows, cols)
		randomNormal(p.Value, scale, l.source())
		l.weights[g] = p
	}
	l.bias = nil
	if biasRows > 0 {
		l.bias = optim.NewParameter("bias", optim.RoleBias, biasRows, biasCols)
	}
	return nil
}

func (l *learnable) matches(groups, rows, cols, biasRows, biasCols int) bool {
	if len(l.weights) != groups {
		return false
	}
	for _, w := range l.weights {
		if w.Value.Rows() != rows || w.Value.Cols() != cols {
			return false
		}
	}
	if biasRows == 0 {
		return l.bias == nil
	}
	return l.bias != nil && l.bias.Value.Rows() == biasRows && l.bias.Value.Cols() == biasCols
}

// Parameters returns weights (one per group) followed by the bias.
func (l *learnable) Parameters() []*optim.Parameter {
	params := make([]*optim.Parameter, 0, len(l.weights)+1)
	params = append(params, l.weights...)
	if l.bias != nil {
		params = append(params, l.bias)
	}
	return params
}

// Update applies one momentum-SGD step.
func (l *learnable) Update() error {
	if l.sgd == nil {
		return ErrNotInitialized
	}
	return l.sgd.Step(l.Parameters()...)
}

// ScaleLearningRate anneals the weight and bias learning rates.
func (l *learnable) ScaleLearningRate() {
	if l.sgd != nil {
		l.sgd.ScaleLearningRate()
	}
}

// RegularizationCost returns 0.5 * weightDecay * Σ w².
func (l *learnable) RegularizationCost() float64 {
	if l.sgd == nil {
		return 0
	}
	var sum float64
	for _, w := range l.weights {
		sum += w.Value.SumSquares()
	}
	return 0.5 * float64(l.sgd.WeightDecay()) * sum
}

// Optimizer returns the layer's updater, nil before Init.
func (l *learnable) Optimizer() *optim.SGD {
	return l.sgd
}

// NumParams returns the number of learnable scalars.
func (l *learnable) NumParams() int {
	n := 0
	for _, p := range l.Parameters() {
		n += p.NumElements()
	}
	return n
}

// zeroAll clears every matrix.
func zeroAll(ms ...*tensor.Matrix) {
	for _, m := range ms {
		m.Zero()
	}
}
