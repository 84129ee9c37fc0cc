// Package train drives mini-batch training of an nn.Network over a dataset.
package train

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/born-ml/convnet/internal/dataset"
	"github.com/born-ml/convnet/internal/nn"
)

// ErrNoImageInput is returned for networks built on a flat input.
var ErrNoImageInput = errors.New("network has no image input")

// Config controls a training run.
type Config struct {
	Epochs int

	// AnnealEvery calls ScaleLearningRate after every AnnealEvery epochs
	// (0 disables annealing).
	AnnealEvery int

	// Validation, when set, is evaluated after every epoch.
	Validation *dataset.Dataset

	// CheckpointPath, when set, is overwritten with a checkpoint after every
	// epoch.
	CheckpointPath string

	Logger *slog.Logger // nil discards
	Source rand.Source  // epoch shuffles; nil uses the network's source
}

// EpochStats summarizes one epoch.
type EpochStats struct {
	Epoch        int
	Loss         float64 // mean training loss over the batches
	Accuracy     float64 // training accuracy over the batches
	ValLoss      float64
	ValAccuracy  float64
	LearningRate float32
	Duration     time.Duration
}

// Trainer runs epochs of shuffle, forward, backward and update.
type Trainer struct {
	net    *nn.Network
	cfg    Config
	log    *slog.Logger
	src    rand.Source
	labels []int

	epoch int   // next epoch to run, 1-based
	step  int64 // batches processed
}

// New creates a trainer for a built network with an image input.
func New(net *nn.Network, cfg Config) (*Trainer, error) {
	if !net.Built() {
		return nil, nn.ErrNetworkNotBuilt
	}
	if net.ImageInput() == nil {
		return nil, ErrNoImageInput
	}
	if cfg.Epochs < 0 || cfg.AnnealEvery < 0 {
		return nil, fmt.Errorf("invalid config: epochs %d, anneal every %d", cfg.Epochs, cfg.AnnealEvery)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	src := cfg.Source
	if src == nil {
		src = net.Source()
	}
	return &Trainer{
		net:    net,
		cfg:    cfg,
		log:    log,
		src:    src,
		labels: make([]int, net.BatchSize()),
		epoch:  1,
	}, nil
}

// Step returns the number of training batches processed so far.
func (t *Trainer) Step() int64 { return t.step }

// Resume restores a checkpoint written by a previous run. Training
// continues with the epoch after the saved one.
func (t *Trainer) Resume(path string) error {
	ckpt, err := nn.LoadCheckpoint(path, t.net)
	if err != nil {
		return err
	}
	t.epoch = ckpt.Epoch + 1
	t.step = ckpt.Step
	t.log.Info("resumed", "path", path, "epoch", ckpt.Epoch, "step", ckpt.Step, "loss", ckpt.Loss)
	return nil
}

// Fit trains until cfg.Epochs epochs have run and returns the statistics
// of the epochs run by this call. Cancelling ctx stops at the next batch.
func (t *Trainer) Fit(ctx context.Context, train *dataset.Dataset) ([]EpochStats, error) {
	var history []EpochStats
	for ; t.epoch <= t.cfg.Epochs; t.epoch++ {
		start := time.Now()
		loss, acc, err := t.TrainEpoch(ctx, train)
		if err != nil {
			return history, fmt.Errorf("epoch %d: %w", t.epoch, err)
		}
		stats := EpochStats{
			Epoch:        t.epoch,
			Loss:         loss,
			Accuracy:     acc,
			LearningRate: t.net.LearningRate(),
		}
		if t.cfg.Validation != nil {
			stats.ValLoss, stats.ValAccuracy, err = t.Evaluate(t.cfg.Validation)
			if err != nil {
				return history, fmt.Errorf("epoch %d: validation: %w", t.epoch, err)
			}
		}
		stats.Duration = time.Since(start)
		history = append(history, stats)

		t.log.Info("epoch",
			"epoch", stats.Epoch,
			"loss", stats.Loss,
			"accuracy", stats.Accuracy,
			"val_loss", stats.ValLoss,
			"val_accuracy", stats.ValAccuracy,
			"lr", stats.LearningRate,
			"duration", stats.Duration,
		)

		if t.cfg.CheckpointPath != "" {
			ckpt := &nn.Checkpoint{Epoch: t.epoch, Step: t.step, Loss: loss}
			if err := ckpt.Save(t.cfg.CheckpointPath, t.net); err != nil {
				return history, err
			}
		}
		if t.cfg.AnnealEvery > 0 && t.epoch%t.cfg.AnnealEvery == 0 {
			t.net.ScaleLearningRate()
			t.log.Debug("annealed", "epoch", t.epoch, "lr", t.net.LearningRate())
		}
	}
	return history, nil
}

// TrainEpoch runs one shuffled pass over ds. Only full batches are used;
// a dataset smaller than one batch is padded by wrapping around.
func (t *Trainer) TrainEpoch(ctx context.Context, ds *dataset.Dataset) (loss, acc float64, err error) {
	if ds.Len() == 0 {
		return 0, 0, dataset.ErrEmpty
	}
	batch := t.net.BatchSize()
	order := dataset.Permutation(ds.Len(), t.src)
	numBatches := max(ds.Len()/batch, 1)
	input := t.net.ImageInput()

	for b := range numBatches {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		if _, err := ds.Batch(input, t.labels, order, b*batch); err != nil {
			return 0, 0, err
		}
		t.net.SetLabels(t.labels)
		if err := t.net.Forward(); err != nil {
			return 0, 0, err
		}
		loss += t.net.Loss()
		acc += t.net.Accuracy(t.labels)
		if err := t.net.Backward(); err != nil {
			return 0, 0, err
		}
		if err := t.net.Update(); err != nil {
			return 0, 0, err
		}
		t.step++
		t.log.Debug("batch", "epoch", t.epoch, "batch", b+1, "of", numBatches, "loss", t.net.Loss())
	}
	n := float64(numBatches)
	return loss / n, acc / n, nil
}

// Evaluate runs forward passes over every sample of ds in order and returns
// the mean loss and the accuracy. The last batch is filled by wrapping
// around; wrapped samples are not counted. Dropout layers stay active
// unless they were removed with RemoveDropout.
func (t *Trainer) Evaluate(ds *dataset.Dataset) (loss, acc float64, err error) {
	if ds.Len() == 0 {
		return 0, 0, dataset.ErrEmpty
	}
	batch := t.net.BatchSize()
	order := dataset.Identity(ds.Len())
	input := t.net.ImageInput()

	correct := 0
	for start := 0; start < ds.Len(); start += batch {
		kept, err := ds.Batch(input, t.labels, order, start)
		if err != nil {
			return 0, 0, err
		}
		t.net.SetLabels(t.labels)
		if err := t.net.Forward(); err != nil {
			return 0, 0, err
		}
		for _, l := range t.net.RowLosses()[:kept] {
			loss += l
		}
		for i, p := range t.net.Predictions()[:kept] {
			if p == t.labels[i] {
				correct++
			}
		}
	}
	n := float64(ds.Len())
	return loss / n, float64(correct) / n, nil
}
