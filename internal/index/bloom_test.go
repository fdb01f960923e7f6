package index

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	bf := NewBloomFilter(100, 0.01)
	items := make([]string, 100)
	for i := range items {
		items[i] = fmt.Sprintf("symbol-%d", i)
		bf.Add(items[i])
	}
	for _, item := range items {
		assert.True(t, bf.MayContain(item))
	}
}

func TestBloomFilterRejectsMost(t *testing.T) {
	bf := NewBloomFilter(100, 0.01)
	for i := 0; i < 100; i++ {
		bf.Add(fmt.Sprintf("symbol-%d", i))
	}

	falsePositives := 0
	trials := 1000
	for i := 0; i < trials; i++ {
		if bf.MayContain(fmt.Sprintf("absent-%d", i)) {
			falsePositives++
		}
	}
	// Generously loose bound: sized for 1% FPR, allow up to 10x slack.
	assert.Less(t, falsePositives, trials/10)
}
