package nn

import (
	"strings"

	"github.com/born-ml/convnet/internal/geometry"
	"github.com/born-ml/convnet/internal/parallel"
	"github.com/born-ml/convnet/internal/tensor"
	"github.com/chewxy/math32"
)

// PoolOperator reduces a clipped window [r1,r2) × [c1,c2) of a feature map.
type PoolOperator interface {
	// Name returns "Max" or "Avg".
	Name() string

	// Forward returns the reduction of the window of in.
	Forward(in *tensor.Matrix, r1, r2, c1, c2 int) float32

	// Backward accumulates the output gradient g into grad over the window.
	Backward(grad, in *tensor.Matrix, g float32, r1, r2, c1, c2 int)
}

// NewPoolOperator returns the operator registered under name (case
// insensitive).
func NewPoolOperator(name string) (PoolOperator, error) {
	switch strings.ToLower(name) {
	case "max":
		return MaxPool{}, nil
	case "avg":
		return AvgPool{}, nil
	default:
		return nil, configError("pool", "Method", "unknown pooling %q (want Max or Avg)", name)
	}
}

// MaxPool keeps the window maximum.
type MaxPool struct{}

// Name implements PoolOperator.
func (MaxPool) Name() string { return "Max" }

// Forward implements PoolOperator. An empty window yields 0.
func (MaxPool) Forward(in *tensor.Matrix, r1, r2, c1, c2 int) float32 {
	if r1 >= r2 || c1 >= c2 {
		return 0
	}
	best := math32.Inf(-1)
	for r := r1; r < r2; r++ {
		row := in.Row(r)
		for c := c1; c < c2; c++ {
			if best < row[c] {
				best = row[c]
			}
		}
	}
	return best
}

// Backward implements PoolOperator. The window is rescanned and the gradient
// goes to the first position holding the maximum in row-major order.
func (MaxPool) Backward(grad, in *tensor.Matrix, g float32, r1, r2, c1, c2 int) {
	best := math32.Inf(-1)
	br, bc := -1, -1
	for r := r1; r < r2; r++ {
		row := in.Row(r)
		for c := c1; c < c2; c++ {
			if best < row[c] {
				best = row[c]
				br, bc = r, c
			}
		}
	}
	if br >= 0 {
		grad.Row(br)[bc] += g
	}
}

// AvgPool sums the window. Dividing by the window area is left to the
// layer's ScaledMaps option.
type AvgPool struct{}

// Name implements PoolOperator.
func (AvgPool) Name() string { return "Avg" }

// Forward implements PoolOperator.
func (AvgPool) Forward(in *tensor.Matrix, r1, r2, c1, c2 int) float32 {
	var s float32
	for r := r1; r < r2; r++ {
		row := in.Row(r)
		for c := c1; c < c2; c++ {
			s += row[c]
		}
	}
	return s
}

// Backward implements PoolOperator: every window position receives g.
func (AvgPool) Backward(grad, _ *tensor.Matrix, g float32, r1, r2, c1, c2 int) {
	for r := r1; r < r2; r++ {
		row := grad.Row(r)
		for c := c1; c < c2; c++ {
			row[c] += g
		}
	}
}

// PoolConfig configures a Pool layer.
type PoolConfig struct {
	Method     string                  // Max or Avg
	Window     geometry.WeightGeometry // only Width and Height are used
	Stride     geometry.StrideGeometry
	Pad        geometry.PadGeometry
	ScaledMaps bool // divide outputs and input gradients by the window area
	Workers    parallel.Config
}

// Pool reduces each window of every channel with a PoolOperator.
//
// Windows are clipped to the feature map instead of reading zero padding, so
// windows near a padded border cover fewer cells.
type Pool struct {
	cfg PoolConfig
	op  PoolOperator
	in  *ImagePort
	out *ImagePort
}

// NewPool creates a pooling layer.
func NewPool(cfg PoolConfig) (*Pool, error) {
	op, err := NewPoolOperator(cfg.Method)
	if err != nil {
		return nil, err
	}
	if err := cfg.Window.ValidateWindow(); err != nil {
		return nil, configError("pool", "Window", "%v", err)
	}
	if err := cfg.Stride.Validate(); err != nil {
		return nil, configError("pool", "Stride", "%v", err)
	}
	if err := cfg.Pad.Validate(); err != nil {
		return nil, configError("pool", "Pad", "%v", err)
	}
	return &Pool{cfg: cfg, op: op}, nil
}

// Kind implements Layer.
func (p *Pool) Kind() Kind { return KindPool }

// Operator returns the reduction operator.
func (p *Pool) Operator() PoolOperator { return p.op }

// ConnectImage implements ImageConsumer.
func (p *Pool) ConnectImage(in *ImagePort) { p.in = in }

// ImageOutput implements ImageProducer.
func (p *Pool) ImageOutput() *ImagePort { return p.out }

func (p *Pool) useParallel(cfg parallel.Config) { p.cfg.Workers = cfg }

func (p *Pool) parallelConfig() parallel.Config { return p.cfg.Workers }

// Init implements Layer.
func (p *Pool) Init() error {
	shape, err := imageInputShape("pool", p.in)
	if err != nil {
		return err
	}
	outRows, outCols, err := geometry.OutputSize(shape[2], shape[3], p.cfg.Window.Height, p.cfg.Window.Width, p.cfg.Stride, p.cfg.Pad)
	if err != nil {
		return configError("pool", "Window", "%v", err)
	}
	p.out = newImagePort(shape[0], shape[1], outRows, outCols)
	return nil
}

// window returns the clipped bounds of output cell (r, c).
func (p *Pool) window(r, c, inRows, inCols int) (r1, r2, c1, c2 int) {
	r1 = r*p.cfg.Stride.StepRow - p.cfg.Pad.Top
	r2 = max(min(r1+p.cfg.Window.Height, inRows), 0)
	r1 = max(r1, 0)
	c1 = c*p.cfg.Stride.StepCol - p.cfg.Pad.Left
	c2 = max(min(c1+p.cfg.Window.Width, inCols), 0)
	c1 = max(c1, 0)
	return r1, r2, c1, c2
}

func (p *Pool) area() float32 {
	return float32(p.cfg.Window.Height * p.cfg.Window.Width)
}

func divide(m *tensor.Matrix, d float32) {
	data := m.Data()
	for i := range data {
		data[i] /= d
	}
}

// Forward implements Layer.
func (p *Pool) Forward() error {
	if p.out == nil {
		return notInitialized("pool")
	}
	in, out := p.in.Value, p.out.Value
	parallel.For(len(in), func(i int) {
		for ch, src := range in[i] {
			dst := out[i][ch]
			for r := 0; r < dst.Rows(); r++ {
				row := dst.Row(r)
				for c := range row {
					r1, r2, c1, c2 := p.window(r, c, src.Rows(), src.Cols())
					row[c] = p.op.Forward(src, r1, r2, c1, c2)
				}
			}
			if p.cfg.ScaledMaps {
				divide(dst, p.area())
			}
		}
	}, p.cfg.Workers)
	return nil
}

// Backward implements Layer. The input gradient is overwritten.
func (p *Pool) Backward() error {
	if p.out == nil {
		return notInitialized("pool")
	}
	if p.in.Grad == nil {
		return nil
	}
	in, grad, dst := p.in.Value, p.out.Grad, p.in.Grad
	parallel.For(len(in), func(i int) {
		for ch, src := range in[i] {
			up := dst[i][ch]
			up.Zero()
			g := grad[i][ch]
			for r := 0; r < g.Rows(); r++ {
				row := g.Row(r)
				for c, v := range row {
					r1, r2, c1, c2 := p.window(r, c, src.Rows(), src.Cols())
					p.op.Backward(up, src, v, r1, r2, c1, c2)
				}
			}
			if p.cfg.ScaledMaps {
				divide(up, p.area())
			}
		}
	}, p.cfg.Workers)
	return nil
}
