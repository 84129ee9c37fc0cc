package nn

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/born-ml/convnet/internal/serialization"
	"github.com/born-ml/convnet/internal/tensor"
)

// Checkpoint metadata keys.
const (
	metaFormat    = "format"
	metaEpoch     = "epoch"
	metaStep      = "step"
	metaLoss      = "loss"
	metaCreatedAt = "created_at"

	checkpointFormat = "convnet-checkpoint"
	optimizerPrefix  = "optimizer."
)

// ErrNotCheckpoint is returned when a file lacks checkpoint metadata.
var ErrNotCheckpoint = errors.New("file is not a checkpoint")

// Checkpoint is a training state snapshot: network parameters, momentum
// buffers and progress counters.
//
// Example:
//
//	ckpt := &nn.Checkpoint{Epoch: 10, Step: 5000, Loss: 0.12}
//	err := ckpt.Save("epoch10.safetensors", net)
//
// To resume, build the same architecture and call LoadCheckpoint; training
// continues at ckpt.Epoch + 1.
type Checkpoint struct {
	Epoch     int               // Training epoch number
	Step      int64             // Training step number
	Loss      float64           // Loss value at this checkpoint
	Metadata  map[string]string // Additional training metadata
	CreatedAt time.Time         // When the checkpoint was created
}

// Save writes the parameters and momenta of net to path.
func (c *Checkpoint) Save(path string, net *Network) error {
	if !net.Built() {
		return ErrNetworkNotBuilt
	}
	state := make(map[string]*tensor.Matrix)
	for name, m := range net.StateDict() {
		state[name] = m
	}
	for name, m := range net.OptimizerStateDict() {
		state[optimizerPrefix+name] = m
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	meta := make(map[string]string, len(c.Metadata)+5)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta[metaFormat] = checkpointFormat
	meta[metaEpoch] = strconv.Itoa(c.Epoch)
	meta[metaStep] = strconv.FormatInt(c.Step, 10)
	meta[metaLoss] = strconv.FormatFloat(c.Loss, 'g', -1, 64)
	meta[metaCreatedAt] = c.CreatedAt.Format(time.RFC3339Nano)

	if err := serialization.WriteSafeTensors(path, state, meta); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores parameters and momenta from path into net, which
// must be built with the architecture the checkpoint was saved from.
func LoadCheckpoint(path string, net *Network) (*Checkpoint, error) {
	state, meta, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if meta[metaFormat] != checkpointFormat {
		return nil, ErrNotCheckpoint
	}

	c := &Checkpoint{Metadata: make(map[string]string)}
	for k, v := range meta {
		switch k {
		case metaEpoch:
			c.Epoch, err = strconv.Atoi(v)
		case metaStep:
			c.Step, err = strconv.ParseInt(v, 10, 64)
		case metaLoss:
			c.Loss, err = strconv.ParseFloat(v, 64)
		case metaCreatedAt:
			c.CreatedAt, err = time.Parse(time.RFC3339Nano, v)
		case metaFormat, serialization.ChecksumKey:
		default:
			c.Metadata[k] = v
		}
		if err != nil {
			return nil, fmt.Errorf("checkpoint metadata %q: %w", k, err)
		}
	}

	// The network is only touched once the metadata has parsed.
	params := make(map[string]*tensor.Matrix)
	moments := make(map[string]*tensor.Matrix)
	for name, m := range state {
		if rest, ok := strings.CutPrefix(name, optimizerPrefix); ok {
			moments[rest] = m
		} else {
			params[name] = m
		}
	}
	if err := net.LoadStateDict(params); err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}
	if err := net.LoadOptimizerStateDict(moments); err != nil {
		return nil, fmt.Errorf("failed to load optimizer state: %w", err)
	}
	return c, nil
}

// SaveCheckpoint saves net with only the epoch recorded.
func SaveCheckpoint(path string, net *Network, epoch int) error {
	c := &Checkpoint{Epoch: epoch}
	return c.Save(path, net)
}
