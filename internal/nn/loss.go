package nn

import (
	"fmt"

	"github.com/born-ml/convnet/internal/tensor"
	"github.com/chewxy/math32"
)

// minProb is the smallest normal float32; probabilities are clamped to it
// before taking the logarithm.
const minProb = 0x1p-126

// SoftmaxLoss is the terminal layer: row-wise softmax over the logits and
// cross-entropy against integer class labels.
//
//	P    = softmax(logits)          (row max subtracted before exp)
//	loss = -Σ log(P) ⊙ Y / batch    (Y one-hot labels)
//	grad = (P - Y) / batch
type SoftmaxLoss struct {
	in     *FlatPort
	prob   *tensor.Matrix
	onehot *tensor.Matrix
	labels []int
	loss   float64
}

// NewSoftmaxLoss creates a softmax cross-entropy layer.
func NewSoftmaxLoss() *SoftmaxLoss {
	return &SoftmaxLoss{}
}

// Kind implements Layer.
func (s *SoftmaxLoss) Kind() Kind { return KindLoss }

// ConnectFlat implements FlatConsumer.
func (s *SoftmaxLoss) ConnectFlat(in *FlatPort) { s.in = in }

// SetLabels sets the class label of every row for the next forward pass.
// The slice is not copied.
func (s *SoftmaxLoss) SetLabels(labels []int) {
	s.labels = labels
}

// Labels returns the current labels.
func (s *SoftmaxLoss) Labels() []int { return s.labels }

// Init implements Layer.
func (s *SoftmaxLoss) Init() error {
	rows, cols, err := flatInputShape("loss", s.in)
	if err != nil {
		return err
	}
	s.prob = tensor.NewMatrix(rows, cols)
	s.onehot = tensor.NewMatrix(rows, cols)
	return nil
}

// validateLabels expands the labels into the one-hot matrix.
func (s *SoftmaxLoss) validateLabels() error {
	if s.labels == nil {
		return ErrNoLabels
	}
	rows, classes := s.onehot.Rows(), s.onehot.Cols()
	if len(s.labels) != rows {
		return tensor.Mismatch("loss", "%d labels for %d rows", len(s.labels), rows)
	}
	s.onehot.Zero()
	for i, l := range s.labels {
		if l < 0 || l >= classes {
			return fmt.Errorf("loss: row %d: label %d not in [0, %d): %w", i, l, classes, ErrLabelOutOfRange)
		}
		s.onehot.Set(i, l, 1)
	}
	return nil
}

// Forward implements Layer: computes probabilities and the loss.
func (s *SoftmaxLoss) Forward() error {
	if s.prob == nil {
		return notInitialized("loss")
	}
	if err := s.validateLabels(); err != nil {
		return err
	}
	Softmax(s.prob, s.in.Value)

	var sum float64
	for r := 0; r < s.prob.Rows(); r++ {
		sum += s.rowLoss(r)
	}
	s.loss = sum / float64(s.prob.Rows())
	return nil
}

func (s *SoftmaxLoss) rowLoss(r int) float64 {
	p := s.prob.Row(r)[s.labels[r]]
	return -float64(math32.Log(max(p, minProb)))
}

// RowLosses returns the cross-entropy of every row of the last forward pass.
// Their mean is Loss.
func (s *SoftmaxLoss) RowLosses() []float64 {
	if s.prob == nil || len(s.labels) != s.prob.Rows() {
		return nil
	}
	out := make([]float64, s.prob.Rows())
	for r := range out {
		out[r] = s.rowLoss(r)
	}
	return out
}

// Backward implements Layer: writes (P - Y)/batch into the input gradient.
func (s *SoftmaxLoss) Backward() error {
	if s.prob == nil {
		return notInitialized("loss")
	}
	if s.in.Grad == nil {
		return nil
	}
	n := float32(s.prob.Rows())
	dst, p, y := s.in.Grad.Data(), s.prob.Data(), s.onehot.Data()
	for i := range dst {
		dst[i] = (p[i] - y[i]) / n
	}
	return nil
}

// Loss returns the cross-entropy of the last forward pass.
func (s *SoftmaxLoss) Loss() float64 { return s.loss }

// Probabilities returns the softmax output of the last forward pass.
func (s *SoftmaxLoss) Probabilities() *tensor.Matrix { return s.prob }

// Predictions returns the arg-max class of every row (first on ties).
func (s *SoftmaxLoss) Predictions() []int {
	if s.prob == nil {
		return nil
	}
	out := make([]int, s.prob.Rows())
	for r := range out {
		out[r] = argmax(s.prob.Row(r))
	}
	return out
}

// Accuracy returns the fraction of rows whose prediction equals labels[r].
func (s *SoftmaxLoss) Accuracy(labels []int) float64 {
	pred := s.Predictions()
	if len(pred) == 0 || len(labels) != len(pred) {
		return 0
	}
	hit := 0
	for i, p := range pred {
		if p == labels[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(pred))
}

// Softmax writes the row-wise softmax of src into dst (same shape).
func Softmax(dst, src *tensor.Matrix) {
	for r := 0; r < src.Rows(); r++ {
		in, out := src.Row(r), dst.Row(r)
		peak := math32.Inf(-1)
		for _, v := range in {
			peak = max(peak, v)
		}
		var sum float32
		for c, v := range in {
			out[c] = math32.Exp(v - peak)
			sum += out[c]
		}
		for c := range out {
			out[c] /= sum
		}
	}
}

func argmax(row []float32) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}
