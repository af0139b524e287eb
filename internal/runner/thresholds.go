package runner

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// ResolveSeed returns seed, or a time-based seed when seed is zero.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

// NewRand returns a deterministic generator for seed.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0))
}

// GenerateThresholds draws n thresholds uniformly from [lo, hi].
func GenerateThresholds(rng *rand.Rand, n, lo, hi int) ([]int, error) {
	if n < 1 {
		return nil, fmt.Errorf("threshold count must be >= 1, got %d", n)
	}
	if lo < 1 || hi < lo {
		return nil, fmt.Errorf("invalid threshold range [%d, %d]", lo, hi)
	}
	out := make([]int, n)
	for i := range out {
		out[i] = lo + rng.IntN(hi-lo+1)
	}
	return out, nil
}
