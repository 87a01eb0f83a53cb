// Package mock provides a deterministic embedder for tests. Vectors are
// derived from a hash of the input text, so identical text always produces
// an identical (unit-norm) vector.
package mock

import (
	"fmt"
	"hash/fnv"
	"math"
)

type Embedder struct {
	dim  int
	fail bool
}

func New(dim int) *Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &Embedder{dim: dim}
}

// SetFail makes every subsequent Embed call return an error, simulating an
// unavailable embedding model.
func (e *Embedder) SetFail(fail bool) {
	e.fail = fail
}

func (e *Embedder) Embed(text string) ([]float32, error) {
	if e.fail {
		return nil, fmt.Errorf("mock embedder: unavailable")
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dim)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float32(int64(seed)) / float32(math.MaxInt64)
		vec[i] = v
		norm += float64(v) * float64(v)
	}

	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

func (e *Embedder) Dimension() int {
	return e.dim
}
