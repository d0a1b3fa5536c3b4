package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDFAlwaysPositive(t *testing.T) {
	assert.Greater(t, IDF(1, 1), 0.0)
	assert.Greater(t, IDF(100, 100), 0.0)
	assert.Greater(t, IDF(100, 1), IDF(100, 50), "rarer terms weigh more")
}

func TestTFNormMonotonic(t *testing.T) {
	prev := 0.0
	for tf := 1.0; tf <= 10; tf++ {
		got := TFNorm(tf, 10, 10)
		assert.Greater(t, got, prev)
		assert.Less(t, got, K1+1, "saturates below k1+1")
		prev = got
	}
	assert.Equal(t, 0.0, TFNorm(0, 10, 10))
}

func TestLengthNormalisation(t *testing.T) {
	short := TFNorm(1, 2, 10)
	long := TFNorm(1, 40, 10)
	assert.Greater(t, short, long)
	assert.InDelta(t, TFNorm(1, 5, 5), TFNorm(1, 0, 0), 1e-12, "zero average means no length penalty")
}

func TestRepeatedTermOutranksSingle(t *testing.T) {
	stats := FieldStats{TotalDocs: 2, AvgFieldLength: 1.5}
	idf := IDF(2, 2)
	once := Score(idf, 1, 1, stats)
	twice := Score(idf, 2, 2, stats)
	assert.Greater(t, twice, once)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.2346, Round(1.23456))
	assert.Equal(t, 0.0, Round(0.00004))
}
