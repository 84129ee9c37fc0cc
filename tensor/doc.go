// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the buffers the layers exchange.
//
//   - Matrix: a dense row-major float32 matrix (a feature map or a flat batch)
//   - Image: the channel feature maps of one sample
//   - ImageBatch: a batch of images sharing channel count and size
//
// Example:
//
//	batch := tensor.NewImageBatch(32, 3, 32, 32) // 32 RGB 32×32 images
//	m, err := tensor.FromSlice([]float32{1, 2, 3, 4}, 2, 2)
package tensor
