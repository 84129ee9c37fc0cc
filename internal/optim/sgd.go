package optim

import (
	"fmt"

	"github.com/born-ml/convnet/internal/geometry"
	"github.com/born-ml/convnet/internal/tensor"
)

// SGD implements momentum Stochastic Gradient Descent with L2 weight decay.
//
// Update rule, applied independently to every parameter:
//
//	moment = momentRate * moment + learningRate * (grad + weightDecay * param)
//	param  = param - moment
//
// Weights and biases have separate learning and momentum rates taken from the
// LearnGeometry; weight decay applies to both and is disabled when negative.
type SGD struct {
	learn geometry.LearnGeometry
}

// NewSGD creates a momentum SGD updater.
func NewSGD(learn geometry.LearnGeometry) (*SGD, error) {
	if err := learn.Validate(); err != nil {
		return nil, fmt.Errorf("optim: %w", err)
	}
	return &SGD{learn: learn}, nil
}

// Step performs a single optimization step on params.
func (s *SGD) Step(params ...*Parameter) error {
	for _, p := range params {
		if err := p.validate(); err != nil {
			return err
		}
	}

	wd := s.learn.Decay()
	for _, p := range params {
		lr, mr := s.learn.WeightLearningRate, s.learn.WeightMomentRate
		if p.Role == RoleBias {
			lr, mr = s.learn.BiasLearningRate, s.learn.BiasMomentRate
		}

		value, moment, grad := p.Value.Data(), p.Moment.Data(), p.Grad.Data()
		for i := range value {
			moment[i] = mr*moment[i] + lr*(grad[i]+wd*value[i])
			value[i] -= moment[i]
		}
	}
	return nil
}

// ScaleLearningRate multiplies each learning rate by its scale factor. A
// non-positive scale factor leaves that rate unchanged.
func (s *SGD) ScaleLearningRate() {
	if s.learn.BiasLearningRateScale > 0 {
		s.learn.BiasLearningRate *= s.learn.BiasLearningRateScale
	}
	if s.learn.WeightLearningRateScale > 0 {
		s.learn.WeightLearningRate *= s.learn.WeightLearningRateScale
	}
}

// GetLR returns the current weight learning rate.
func (s *SGD) GetLR() float32 {
	return s.learn.WeightLearningRate
}

// BiasLR returns the current bias learning rate.
func (s *SGD) BiasLR() float32 {
	return s.learn.BiasLearningRate
}

// WeightDecay returns the effective decay factor (0 when disabled).
func (s *SGD) WeightDecay() float32 {
	return s.learn.Decay()
}

// Learn returns the current hyper parameters, including annealed rates.
func (s *SGD) Learn() geometry.LearnGeometry {
	return s.learn
}

// StateDict exports the momentum buffers of params.
//
// State keys: "moment.{param_name}" -> momentum matrix (not copied).
func (s *SGD) StateDict(params ...*Parameter) map[string]*tensor.Matrix {
	state := make(map[string]*tensor.Matrix, len(params))
	for _, p := range params {
		state["moment."+p.Name] = p.Moment
	}
	return state
}

// LoadStateDict restores momentum buffers. Missing entries leave the
// corresponding moment untouched.
//
// Returns an error if a moment's shape doesn't match its parameter.
func (s *SGD) LoadStateDict(state map[string]*tensor.Matrix, params ...*Parameter) error {
	for _, p := range params {
		m, ok := state["moment."+p.Name]
		if !ok {
			continue
		}
		if err := p.Moment.CopyFrom(m); err != nil {
			return fmt.Errorf("moment shape mismatch for parameter %q: %w", p.Name, err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ Optimizer = (*SGD)(nil)
