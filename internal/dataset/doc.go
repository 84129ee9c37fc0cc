// Package dataset loads image classification datasets into image batches.
//
// Supported formats:
//
//   - MNIST IDX files: big-endian header (magic 2051 for images, 2049 for
//     labels, then counts and sizes) followed by raw unsigned bytes.
//   - CIFAR-10 binary batches: records of one label byte followed by the
//     red, green and blue 32×32 planes.
//
// Pixels are stored as float32 in [0, 255]; call Normalize to rescale.
package dataset
