package nn

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"

	"github.com/born-ml/convnet/internal/tensor"
	"gonum.org/v1/gonum/stat/distuv"
)

// NewSource returns a deterministic PCG source for seed.
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// NewEntropySource returns a PCG source seeded from the operating system.
func NewEntropySource() rand.Source {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(err)
	}
	return rand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:]))
}

// randomNormal fills m with N(0, 1) draws and multiplies them by scale when
// scale > 0.
func randomNormal(m *tensor.Matrix, scale float32, src rand.Source) {
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	data := m.Data()
	for i := range data {
		data[i] = float32(dist.Rand())
	}
	if scale > 0 {
		m.Scale(scale)
	}
}

// randomMask fills mask with 0 or 1/(1-rate): an entry survives when a
// uniform [0,1) draw exceeds rate.
func randomMask(mask []float32, rate float32, src rand.Source) {
	dist := distuv.Uniform{Min: 0, Max: 1, Src: src}
	keep := 1 / (1 - rate)
	for i := range mask {
		if float32(dist.Rand()) > rate {
			mask[i] = keep
		} else {
			mask[i] = 0
		}
	}
}
