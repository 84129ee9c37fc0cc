// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the momentum SGD updater used by trainable layers.
//
// Each trainable layer owns one SGD built from its LearnGeometry:
//
//	moment = momentRate*moment + lr*(grad + decay*value)
//	value -= moment
//
// Weights and biases have separate learning and momentum rates; a negative
// WeightDecay disables decay.
// ScaleLearningRate multiplies both rates by their scale factors; call it to
// anneal between epochs.
package optim
