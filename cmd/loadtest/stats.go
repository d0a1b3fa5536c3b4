package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"
)

// Stats accumulates request outcomes from every worker.
type Stats struct {
	mu          sync.Mutex
	total       int64
	errors      int64
	cacheHits   int64
	latencies   []time.Duration
	statusCodes map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

// Record adds one request. status is 0 when the request never completed.
func (s *Stats) Record(d time.Duration, status int, cached bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if err != nil {
		s.errors++
		return
	}
	if status < 200 || status >= 300 {
		s.errors++
	}
	if cached {
		s.cacheHits++
	}
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
}

// Summary is the digest printed at the end of a run.
type Summary struct {
	Total, Errors, CacheHits int64
	RPS                      float64
	Min, Avg, P50, P90, P95  time.Duration
	P99, Max, StdDev         time.Duration
	StatusCodes              map[int]int64
}

func (s *Stats) Summarize(elapsed time.Duration) Summary {
	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	sum := Summary{
		Total:       s.total,
		Errors:      s.errors,
		CacheHits:   s.cacheHits,
		StatusCodes: make(map[int]int64, len(s.statusCodes)),
	}
	for code, n := range s.statusCodes {
		sum.StatusCodes[code] = n
	}
	s.mu.Unlock()

	if elapsed > 0 {
		sum.RPS = float64(sum.Total) / elapsed.Seconds()
	}
	if len(latencies) == 0 {
		return sum
	}
	slices.Sort(latencies)
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	sum.Avg = total / time.Duration(len(latencies))
	var sq float64
	for _, l := range latencies {
		diff := float64(l - sum.Avg)
		sq += diff * diff
	}
	sum.StdDev = time.Duration(math.Sqrt(sq / float64(len(latencies))))
	sum.Min = latencies[0]
	sum.Max = latencies[len(latencies)-1]
	sum.P50 = percentile(latencies, 50)
	sum.P90 = percentile(latencies, 90)
	sum.P95 = percentile(latencies, 95)
	sum.P99 = percentile(latencies, 99)
	return sum
}

func (sum Summary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", sum.Total)
	fmt.Fprintf(w, "Errors:          %d\n", sum.Errors)
	if sum.Total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(sum.Errors)/float64(sum.Total)*100)
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", float64(sum.CacheHits)/float64(sum.Total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", sum.RPS)
	}
	if sum.Max > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", sum.Min)
		fmt.Fprintf(w, "Avg:    %s\n", sum.Avg)
		fmt.Fprintf(w, "P50:    %s\n", sum.P50)
		fmt.Fprintf(w, "P90:    %s\n", sum.P90)
		fmt.Fprintf(w, "P95:    %s\n", sum.P95)
		fmt.Fprintf(w, "P99:    %s\n", sum.P99)
		fmt.Fprintf(w, "Max:    %s\n", sum.Max)
		fmt.Fprintf(w, "StdDev: %s\n", sum.StdDev)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	codes := make([]int, 0, len(sum.StatusCodes))
	for code := range sum.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, sum.StatusCodes[code])
	}
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
