// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides convolutional network layers and the Network that
// chains them.
//
// # Overview
//
// This package contains:
//   - Layers: Conv, Pool, Activation, Dropout, Concat, FC, SoftmaxLoss
//     (plus the flat-batch FlatActivation and FlatDropout)
//   - Network: wiring, forward/backward passes, SGD updates, state dicts
//   - Checkpoints: parameters and momenta in SafeTensors files
//   - Geometry: WeightGeometry, StrideGeometry, PadGeometry, LearnGeometry
//
// Layers before Concat work on image batches (batch × channel × height ×
// width); Concat flattens each image into one row and the layers after it
// work on flat batches (batch × features).
//
// # Basic Usage
//
//	conv, _ := nn.NewConv(nn.ConvConfig{
//	    Weight: nn.WeightGeometry{NumWeights: 20, WeightChns: 1, Width: 5, Height: 5, InitWeightScale: 0.01},
//	    Learn:  nn.DefaultLearnGeometry(),
//	})
//	relu, _ := nn.NewActivation(nn.ActivationConfig{Name: "ReLU"})
//	fc, _ := nn.NewFC(nn.FCConfig{
//	    Weight: nn.WeightGeometry{NumWeights: 10, WeightChns: 20, Width: 24, Height: 24, InitWeightScale: 0.01},
//	    Learn:  nn.DefaultLearnGeometry(),
//	})
//
//	net := nn.NewNetwork(nn.WithSeed(1))
//	net.Add(conv, relu, nn.NewConcat(), fc, nn.NewSoftmaxLoss())
//	net.SetImageInput(tensor.NewImageBatch(100, 1, 28, 28))
//	if err := net.Build(); err != nil {
//	    log.Fatal(err)
//	}
//
//	// per batch: fill net.ImageInput(), then
//	net.SetLabels(labels)
//	net.Forward()
//	net.Backward()
//	net.Update()
//
// # Randomness and Parallelism
//
// Weight initialization and dropout masks draw from one injected
// math/rand/v2 Source (WithSeed or WithSource), so runs are reproducible.
// Each layer splits its batch across worker goroutines (WithParallel);
// weight gradients are accumulated per worker and reduced before Update.
package nn
