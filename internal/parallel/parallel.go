// Package parallel provides the fork-join helpers used by the layers to split
// a batch across worker goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool `yaml:"enabled"`        // Whether parallel execution is enabled.
	NumWorkers   int  `yaml:"workers"`        // Number of worker goroutines to use.
	MinChunkSize int  `yaml:"min_chunk_size"` // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns one worker per CPU. Layers split work per image, so
// a chunk may be a single item.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1,
	}
}

// Sequential returns a configuration that runs everything on the caller's
// goroutine.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}
}

// WithWorkers returns a config with exactly n workers (n <= 1 is sequential).
func WithWorkers(n int) Config {
	if n <= 1 {
		return Sequential()
	}
	return Config{Enabled: true, NumWorkers: n, MinChunkSize: 1}
}

// Workers is the number of private accumulators a caller of ForWorkers must
// provide.
func (c Config) Workers() int {
	if !c.Enabled || c.NumWorkers < 1 {
		return 1
	}
	return c.NumWorkers
}

// ChunkSize returns the contiguous range length given to each worker for n
// items: ceil(n/workers), never below MinChunkSize.
func (c Config) ChunkSize(n int) int {
	w := c.Workers()
	return max((n+w-1)/w, c.MinChunkSize, 1)
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	ForWorkers(n, cfg, func(_, start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	})
}

// ForWorkers splits [0, n) into contiguous ranges of ChunkSize(n) items and
// runs f(worker, start, end) for each range, worker being the range index in
// [0, Workers()). It returns after every range has completed, with the number
// of ranges that ran.
func ForWorkers(n int, cfg Config, f func(worker, start, end int)) int {
	if n <= 0 {
		return 0
	}
	chunk := cfg.ChunkSize(n)
	if cfg.Workers() == 1 || chunk >= n {
		f(0, 0, n)
		return 1
	}

	var wg sync.WaitGroup
	worker := 0
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(w, s, e int) {
			defer wg.Done()
			f(w, s, e)
		}(worker, start, end)
		worker++
	}
	wg.Wait()
	return worker
}
