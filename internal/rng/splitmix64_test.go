package rng_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bourse/internal/rng"
)

func TestSplitMix64_DeterministicSequence(t *testing.T) {
	a := rng.NewSplitMix64(101)
	b := rng.NewSplitMix64(101)
	for i := 0; i < 32; i++ {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
}

func TestSplitMix64_DifferentSeedsDiverge(t *testing.T) {
	a := rng.NewSplitMix64(1)
	b := rng.NewSplitMix64(2)
	assert.NotEqual(t, a.Uint64(), b.Uint64())
}

func TestSplitMix64_IntnBounds(t *testing.T) {
	g := rng.NewSplitMix64(7)
	for i := 0; i < 1000; i++ {
		n := g.Intn(5)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 5)
	}
}

func TestSplitMix64_ShufflePermutesEveryElement(t *testing.T) {
	g := rng.NewSplitMix64(42)
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}
	g.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })

	seen := make(map[int]bool)
	for _, v := range items {
		seen[v] = true
	}
	assert.Len(t, seen, 8)
}

func TestSplitMix64_ShuffleDeterministicGivenSeed(t *testing.T) {
	run := func(seed uint64) []int {
		g := rng.NewSplitMix64(seed)
		items := []int{0, 1, 2, 3, 4, 5}
		g.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
		return items
	}
	assert.Equal(t, run(101), run(101))
}
