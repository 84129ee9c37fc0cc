package nn

import (
	"errors"
	"math/rand/v2"

	"github.com/born-ml/convnet/internal/geometry"
	"github.com/born-ml/convnet/internal/im2col"
	"github.com/born-ml/convnet/internal/linalg"
	"github.com/born-ml/convnet/internal/optim"
	"github.com/born-ml/convnet/internal/parallel"
	"github.com/born-ml/convnet/internal/tensor"
)

// ConvConfig configures a Conv layer.
type ConvConfig struct {
	// Weight: NumWeights output channels split into NumGroups groups, each
	// group seeing WeightChns input channels through a Height × Width kernel.
	Weight geometry.WeightGeometry
	Stride geometry.StrideGeometry
	Pad    geometry.PadGeometry
	Learn  geometry.LearnGeometry

	// SkipInputGrad disables the input gradient even when the predecessor
	// provides a gradient buffer; the predecessor then receives zeros.
	SkipInputGrad bool

	Workers parallel.Config
	Source  rand.Source // weight initialization; nil uses the network's source
}

// Conv is a grouped 2D convolution computed with im2col and one matrix
// multiply per group.
//
// Input:  [batch, WeightChns*NumGroups, height, width]
// Output: [batch, NumWeights, outH, outW]
//
// Where:
//
//	outH = (height + Pad.Top + Pad.Bottom - Height) / Stride.StepRow + 1
//	outW = (width + Pad.Left + Pad.Right - Width) / Stride.StepCol + 1
//
// Group g maps input channels [g*WeightChns, (g+1)*WeightChns) to output
// channels [g*NumWeights/NumGroups, (g+1)*NumWeights/NumGroups). Weights are
// stored per group as (NumWeights/NumGroups × WeightChns*Height*Width)
// matrices and the bias as a NumWeights × 1 column.
type Conv struct {
	learnable

	cfg    ConvConfig
	layout im2col.Layout
	in     *ImagePort
	out    *ImagePort

	// Per-worker gradient accumulators. Index 0 aliases the parameters' Grad
	// buffers and receives the reduction.
	gradW [][]*tensor.Matrix
	gradB []*tensor.Matrix

	scratch []*convScratch
}

// convScratch holds the per-worker buffers of one image.
type convScratch struct {
	col   *tensor.Matrix // ColRows × outH*outW
	out   *tensor.Matrix // NumWeights × outH*outW (also reused as delta)
	dzdx  *tensor.Matrix // ColRows × outH*outW
	colG  []*tensor.Matrix
	outG  []*tensor.Matrix
	dzdxG []*tensor.Matrix
}

// NewConv creates a convolution layer. Parameters are allocated by Init.
func NewConv(cfg ConvConfig) (*Conv, error) {
	if err := cfg.Weight.Validate(); err != nil {
		return nil, configError("conv", "Weight", "%v", err)
	}
	if err := cfg.Stride.Validate(); err != nil {
		return nil, configError("conv", "Stride", "%v", err)
	}
	if err := cfg.Pad.Validate(); err != nil {
		return nil, configError("conv", "Pad", "%v", err)
	}
	if err := cfg.Learn.Validate(); err != nil {
		return nil, configError("conv", "Learn", "%v", err)
	}
	c := &Conv{cfg: cfg}
	c.src = cfg.Source
	return c, nil
}

// Kind implements Layer.
func (c *Conv) Kind() Kind { return KindConv }

// Config returns the layer configuration.
func (c *Conv) Config() ConvConfig { return c.cfg }

// ConnectImage implements ImageConsumer.
func (c *Conv) ConnectImage(in *ImagePort) { c.in = in }

// ImageOutput implements ImageProducer.
func (c *Conv) ImageOutput() *ImagePort { return c.out }

func (c *Conv) useParallel(cfg parallel.Config) { c.cfg.Workers = cfg }

func (c *Conv) parallelConfig() parallel.Config { return c.cfg.Workers }

// Weights returns the per-group weight parameters.
func (c *Conv) Weights() []*optim.Parameter { return c.weights }

// Bias returns the bias parameter.
func (c *Conv) Bias() *optim.Parameter { return c.bias }

// Init implements Layer.
func (c *Conv) Init() error {
	shape, err := imageInputShape("conv", c.in)
	if err != nil {
		return err
	}
	w := c.cfg.Weight
	groups := w.Groups()
	if shape[1] != w.WeightChns*groups {
		return configError("conv", "Weight.WeightChns", "input has %d channels, want %d (%d per group × %d groups)",
			shape[1], w.WeightChns*groups, w.WeightChns, groups)
	}
	layout, err := im2col.LayoutFor(shape[1], shape[2], shape[3], w.Height, w.Width, c.cfg.Stride, c.cfg.Pad)
	if err != nil {
		return configError("conv", "Weight", "%v", err)
	}
	c.layout = layout

	perGroup := w.WeightsPerGroup()
	if err := c.allocate(c.cfg.Learn, groups, perGroup, w.KernelSize(), w.InitWeightScale, w.NumWeights, 1); err != nil {
		return configError("conv", "Learn", "%v", err)
	}

	c.out = newImagePort(shape[0], w.NumWeights, layout.OutRows, layout.OutCols)

	workers := c.cfg.Workers.Workers()
	c.gradW = make([][]*tensor.Matrix, workers)
	c.gradB = make([]*tensor.Matrix, workers)
	c.scratch = make([]*convScratch, workers)
	for t := 0; t < workers; t++ {
		c.gradW[t] = make([]*tensor.Matrix, groups)
		for g := range c.gradW[t] {
			if t == 0 {
				c.gradW[t][g] = c.weights[g].Grad
			} else {
				c.gradW[t][g] = tensor.NewMatrix(perGroup, w.KernelSize())
			}
		}
		if t == 0 {
			c.gradB[t] = c.bias.Grad
		} else {
			c.gradB[t] = tensor.NewMatrix(w.NumWeights, 1)
		}
		sc, err := c.newScratch()
		if err != nil {
			return err
		}
		c.scratch[t] = sc
	}
	return nil
}

func (c *Conv) newScratch() (*convScratch, error) {
	w, l := c.cfg.Weight, c.layout
	groups, perGroup, kernel := w.Groups(), w.WeightsPerGroup(), w.KernelSize()
	sc := &convScratch{
		col:   tensor.NewMatrix(l.ColRows, l.ColColumns),
		out:   tensor.NewMatrix(w.NumWeights, l.ColColumns),
		dzdx:  tensor.NewMatrix(l.ColRows, l.ColColumns),
		colG:  make([]*tensor.Matrix, groups),
		outG:  make([]*tensor.Matrix, groups),
		dzdxG: make([]*tensor.Matrix, groups),
	}
	var err error
	for g := 0; g < groups; g++ {
		if sc.colG[g], err = sc.col.RowRange(g*kernel, (g+1)*kernel); err != nil {
			return nil, err
		}
		if sc.dzdxG[g], err = sc.dzdx.RowRange(g*kernel, (g+1)*kernel); err != nil {
			return nil, err
		}
		if sc.outG[g], err = sc.out.RowRange(g*perGroup, (g+1)*perGroup); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

// Forward implements Layer.
func (c *Conv) Forward() error {
	if c.out == nil {
		return notInitialized("conv")
	}
	in, out := c.in.Value, c.out.Value
	errs := make([]error, len(c.scratch))
	parallel.ForWorkers(len(in), c.cfg.Workers, func(t, start, end int) {
		for i := start; i < end && errs[t] == nil; i++ {
			errs[t] = c.forwardOne(out[i], in[i], c.scratch[t])
		}
	})
	return errors.Join(errs...)
}

func (c *Conv) forwardOne(dst, src tensor.Image, sc *convScratch) error {
	if err := c.layout.Im2Col(sc.col, src); err != nil {
		return err
	}
	for g, w := range c.weights {
		if err := linalg.MatMul(sc.outG[g], w.Value, sc.colG[g], false, false); err != nil {
			return err
		}
	}
	if err := linalg.AddColVector(sc.out, c.bias.Value); err != nil {
		return err
	}
	for ch, m := range dst {
		copy(m.Data(), sc.out.Row(ch))
	}
	return nil
}

// Backward implements Layer.
//
// Images are split into contiguous ranges of ceil(batch/workers); every
// worker accumulates into its own zeroed gradient buffers, which are summed
// into worker 0's buffers (the parameters' Grad) after all workers finish.
func (c *Conv) Backward() error {
	if c.out == nil {
		return notInitialized("conv")
	}
	in, grad := c.in.Value, c.out.Grad
	dzdx := c.in.Grad
	if c.cfg.SkipInputGrad && dzdx != nil {
		dzdx.Zero()
		dzdx = nil
	}

	errs := make([]error, len(c.scratch))
	used := parallel.ForWorkers(len(in), c.cfg.Workers, func(t, start, end int) {
		zeroAll(c.gradW[t]...)
		c.gradB[t].Zero()
		for i := start; i < end && errs[t] == nil; i++ {
			var up tensor.Image
			if dzdx != nil {
				up = dzdx[i]
			}
			errs[t] = c.backwardOne(up, in[i], grad[i], c.scratch[t], c.gradW[t], c.gradB[t])
		}
	})
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for t := 1; t < used; t++ {
		for g, acc := range c.gradW[0] {
			if err := acc.Add(c.gradW[t][g]); err != nil {
				return err
			}
		}
		if err := c.gradB[0].Add(c.gradB[t]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conv) backwardOne(up, src, grad tensor.Image, sc *convScratch, gradW []*tensor.Matrix, gradB *tensor.Matrix) error {
	// delta: NumWeights × outH*outW, one row per output channel.
	delta := sc.out
	for k, m := range grad {
		copy(delta.Row(k), m.Data())
	}
	if err := linalg.SumCols(gradB, delta); err != nil {
		return err
	}

	if err := c.layout.Im2Col(sc.col, src); err != nil {
		return err
	}
	for g := range c.weights {
		if err := linalg.MatMulAdd(gradW[g], sc.outG[g], sc.colG[g], false, true); err != nil {
			return err
		}
	}

	if up == nil {
		return nil
	}
	for g, w := range c.weights {
		if err := linalg.MatMul(sc.dzdxG[g], w.Value, sc.outG[g], true, false); err != nil {
			return err
		}
	}
	up.Zero()
	return c.layout.Col2Im(up, sc.dzdx)
}

var _ Trainable = (*Conv)(nil)
