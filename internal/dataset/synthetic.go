package dataset

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/convnet/internal/tensor"
	"gonum.org/v1/gonum/stat/distuv"
)

// Synthetic generates n images of classes distinct patterns: class k lights
// a horizontal band of rows starting at k*rows/classes, plus N(0, noise²)
// pixel noise. Labels cycle through the classes. Pixels lie roughly in
// [0, 255] like the file loaders.
func Synthetic(n, channels, rows, cols, classes int, noise float64, src rand.Source) (*Dataset, error) {
	if n <= 0 || channels <= 0 || rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("synthetic: invalid shape %d×%d×%d×%d", n, channels, rows, cols)
	}
	if classes < 2 || classes > rows {
		return nil, fmt.Errorf("synthetic: %d classes need 2 <= classes <= rows (%d)", classes, rows)
	}
	dist := distuv.Normal{Mu: 0, Sigma: noise, Src: src}
	band := max(rows/classes, 1)

	images := tensor.NewImageBatch(n, channels, rows, cols)
	labels := make([]int, n)
	for i, img := range images {
		k := i % classes
		labels[i] = k
		for _, m := range img {
			for r := range rows {
				base := float32(0)
				if r >= k*band && r < (k+1)*band {
					base = 200
				}
				row := m.Row(r)
				for c := range row {
					row[c] = base + float32(dist.Rand())
				}
			}
		}
	}
	return New(images, labels)
}
