package resilient

import (
	"hash/fnv"
	"math"
)

// FallbackVector derives a unit vector of width dim from text. It carries no
// semantic meaning but keeps identical texts at similarity 1.
func FallbackVector(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dim)
	var sum float64
	for i := range vec {
		// xorshift64
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v := float64(seed%2001)/1000.0 - 1.0
		vec[i] = float32(v)
		sum += v * v
	}
	if sum > 0 {
		inv := 1 / math.Sqrt(sum)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	}
	return vec
}
