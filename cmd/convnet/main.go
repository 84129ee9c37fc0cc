// Package main provides the convnet CLI: train and evaluate CNNs on MNIST,
// CIFAR-10 or a synthetic dataset.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/born-ml/convnet/internal/config"
	"github.com/born-ml/convnet/internal/dataset"
	"github.com/born-ml/convnet/internal/nn"
	"github.com/born-ml/convnet/internal/train"
)

const version = "v0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "convnet %s\n\n", version)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  train      Train a model")
	fmt.Fprintln(os.Stderr, "  eval       Evaluate a checkpoint on the test split")
	fmt.Fprintln(os.Stderr, "  version    Show version")
	fmt.Fprintln(os.Stderr, "\nRun 'convnet <command> -h' for command flags.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "version":
		fmt.Printf("convnet %s\n", version)
	case "train":
		runTrain(os.Args[2:])
	case "eval":
		runEval(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

// common holds the flags shared by train and eval.
type common struct {
	data    *string
	kind    *string
	model   *string
	batch   *int
	seed    *uint64
	workers *int
}

func commonFlags(fs *flag.FlagSet) *common {
	return &common{
		data:    fs.String("data", "./data", "Directory containing the dataset files"),
		kind:    fs.String("dataset", "mnist", "Dataset: mnist, cifar10 or synthetic"),
		model:   fs.String("config", "", "Model YAML file (default: built-in model for the dataset)"),
		batch:   fs.Int("batch", 100, "Batch size"),
		seed:    fs.Uint64("seed", 1, "Random seed"),
		workers: fs.Int("workers", 0, "Worker goroutines per layer (0 = one per CPU)"),
	}
}

func runTrain(args []string) {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	c := commonFlags(fs)
	epochs := fs.Int("epochs", 5, "Number of training epochs")
	anneal := fs.Int("anneal", 0, "Scale learning rates every N epochs (0 = never)")
	save := fs.String("save", "", "Checkpoint file written after every epoch")
	resume := fs.String("resume", "", "Checkpoint to resume from")
	verbose := fs.Bool("v", false, "Log every batch")
	_ = fs.Parse(args)

	trainSet, testSet := loadData(c)
	net := buildNetwork(c, trainSet)
	fmt.Printf("Number of layers: %d\n", len(net.Layers()))
	fmt.Printf("Number of params: %d\n", net.NumParams())
	fmt.Printf("Model size: %.2f MB\n", net.ModelSize())

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	trainer, err := train.New(net, train.Config{
		Epochs:         *epochs,
		AnnealEvery:    *anneal,
		Validation:     testSet,
		CheckpointPath: *save,
		Logger:         slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	})
	if err != nil {
		log.Fatalf("Failed to create trainer: %v", err)
	}
	if *resume != "" {
		if err := trainer.Resume(*resume); err != nil {
			log.Fatalf("Failed to resume: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	history, err := trainer.Fit(ctx, trainSet)
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}
	for _, s := range history {
		fmt.Printf("Epoch %2d: loss %.4f acc %.2f%% | val loss %.4f val acc %.2f%% | lr %g | %s\n",
			s.Epoch, s.Loss, s.Accuracy*100, s.ValLoss, s.ValAccuracy*100, s.LearningRate, s.Duration.Round(1e6))
	}

	if err := net.RemoveDropout(); err != nil {
		log.Fatalf("Failed to remove dropout: %v", err)
	}
	loss, acc, err := trainer.Evaluate(testSet)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}
	fmt.Printf("Test loss %.4f, top-1 error %.4f\n", loss, 1-acc)
}

func runEval(args []string) {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	c := commonFlags(fs)
	ckpt := fs.String("checkpoint", "", "Checkpoint to evaluate (required)")
	_ = fs.Parse(args)
	if *ckpt == "" {
		log.Fatal("eval: -checkpoint is required")
	}

	trainSet, testSet := loadData(c)
	net := buildNetwork(c, trainSet)
	if err := net.RemoveDropout(); err != nil {
		log.Fatalf("Failed to remove dropout: %v", err)
	}
	meta, err := nn.LoadCheckpoint(*ckpt, net)
	if err != nil {
		log.Fatalf("Failed to load checkpoint: %v", err)
	}
	trainer, err := train.New(net, train.Config{})
	if err != nil {
		log.Fatalf("Failed to create evaluator: %v", err)
	}
	loss, acc, err := trainer.Evaluate(testSet)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}
	fmt.Printf("Checkpoint epoch %d (step %d)\n", meta.Epoch, meta.Step)
	fmt.Printf("Test loss %.4f, top-1 error %.4f\n", loss, 1-acc)
}

// loadData returns the normalized training and test splits. The mean image
// of the training split is subtracted from both.
func loadData(c *common) (trainSet, testSet *dataset.Dataset) {
	var err error
	switch *c.kind {
	case "mnist":
		if trainSet, err = dataset.LoadMNIST(*c.data, true); err == nil {
			testSet, err = dataset.LoadMNIST(*c.data, false)
		}
	case "cifar10":
		if trainSet, err = dataset.LoadCIFAR10(*c.data, true); err == nil {
			testSet, err = dataset.LoadCIFAR10(*c.data, false)
		}
	case "synthetic":
		var all *dataset.Dataset
		all, err = dataset.Synthetic(1000, 1, 12, 12, 4, 40, nn.NewSource(*c.seed))
		if err == nil {
			trainSet, testSet, err = all.Split(800)
		}
	default:
		log.Fatalf("Unknown dataset %q (want mnist, cifar10 or synthetic)", *c.kind)
	}
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Dataset files not found in %s.\n", *c.data)
			fmt.Fprintln(os.Stderr, "Run with -dataset synthetic to train without downloads.")
		}
		log.Fatalf("Failed to load %s: %v", *c.kind, err)
	}
	fmt.Printf("Loaded %d training and %d test samples\n", trainSet.Len(), testSet.Len())

	trainSet.Normalize(1.0 / 255)
	testSet.Normalize(1.0 / 255)
	mean := trainSet.Mean()
	for _, ds := range []*dataset.Dataset{trainSet, testSet} {
		if err := ds.SubtractMean(mean); err != nil {
			log.Fatalf("Failed to subtract mean: %v", err)
		}
	}
	return trainSet, testSet
}

// buildNetwork loads the model description (or the built-in one) and sets
// its input to the dataset's sample shape.
func buildNetwork(c *common, ds *dataset.Dataset) *nn.Network {
	var (
		m   *config.Model
		err error
	)
	channels, rows, cols := ds.Shape()
	if *c.model != "" {
		if m, err = config.Load(*c.model); err != nil {
			log.Fatalf("Failed to load model: %v", err)
		}
	} else {
		m = defaultModel(channels, rows, cols, ds.NumClasses())
		m.Seed = *c.seed
	}
	m.Input = config.Input{Batch: *c.batch, Channels: channels, Height: rows, Width: cols}
	if *c.workers > 0 {
		m.Workers = *c.workers
	}

	net, err := m.Network()
	if err != nil {
		log.Fatalf("Failed to build model: %v", err)
	}
	return net
}
