package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	sorted := make([]time.Duration, 100)
	for i := range sorted {
		sorted[i] = time.Duration(i+1) * time.Millisecond
	}
	assert.Equal(t, 50*time.Millisecond, percentile(sorted, 50))
	assert.Equal(t, 99*time.Millisecond, percentile(sorted, 99))
	assert.Equal(t, 100*time.Millisecond, percentile(sorted, 100))
	assert.Equal(t, time.Millisecond, percentile(sorted, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestSummarize(t *testing.T) {
	s := NewStats()
	s.Record(10*time.Millisecond, 200, true, nil)
	s.Record(30*time.Millisecond, 200, false, nil)
	s.Record(20*time.Millisecond, 429, false, nil)
	s.Record(0, 0, false, errors.New("refused"))

	sum := s.Summarize(2 * time.Second)
	assert.Equal(t, int64(4), sum.Total)
	assert.Equal(t, int64(2), sum.Errors)
	assert.Equal(t, int64(1), sum.CacheHits)
	assert.Equal(t, 2.0, sum.RPS)
	assert.Equal(t, 10*time.Millisecond, sum.Min)
	assert.Equal(t, 30*time.Millisecond, sum.Max)
	assert.Equal(t, 20*time.Millisecond, sum.Avg)
	assert.Equal(t, map[int]int64{200: 2, 429: 1}, sum.StatusCodes)

	var buf bytes.Buffer
	sum.Print(&buf)
	assert.Contains(t, buf.String(), "429: 1")
	assert.Contains(t, buf.String(), "Cache Hit Rate:  25.00%")
}
