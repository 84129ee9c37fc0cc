// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/convnet/internal/tensor"

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// Matrix is a dense row-major float32 matrix.
type Matrix = tensor.Matrix

// Image is the channel feature maps of one sample.
type Image = tensor.Image

// ImageBatch is a batch of images.
type ImageBatch = tensor.ImageBatch

// ShapeError describes inconsistent buffer sizes.
type ShapeError = tensor.ShapeError

// ErrShapeMismatch is wrapped by every ShapeError.
var ErrShapeMismatch = tensor.ErrShapeMismatch

// NewMatrix allocates a zero-filled rows × cols matrix.
func NewMatrix(rows, cols int) *Matrix { return tensor.NewMatrix(rows, cols) }

// FromSlice wraps data (row-major, not copied) as a rows × cols matrix.
func FromSlice(data []float32, rows, cols int) (*Matrix, error) {
	return tensor.FromSlice(data, rows, cols)
}

// NewImage allocates a zero-filled image.
func NewImage(channels, rows, cols int) Image { return tensor.NewImage(channels, rows, cols) }

// NewImageBatch allocates a zero-filled batch of shape [n, channels, rows, cols].
func NewImageBatch(n, channels, rows, cols int) ImageBatch {
	return tensor.NewImageBatch(n, channels, rows, cols)
}
