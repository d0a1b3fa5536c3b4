// Package ranker implements BM25 scoring with per-field length
// normalisation.
package ranker

import "math"

const (
	K1 = 1.2
	B  = 0.75
)

// FieldStats are the collection statistics BM25 needs for one field.
type FieldStats struct {
	TotalDocs      int
	AvgFieldLength float64
}

// IDF is the BM25 inverse document frequency. The +1 inside the log keeps
// it positive even for a term present in every document.
func IDF(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(1 + numerator/denominator)
}

// TFNorm is the saturating term-frequency component. Longer than average
// fields are penalised.
func TFNorm(termFreq, fieldLength, avgFieldLength float64) float64 {
	if termFreq <= 0 {
		return 0
	}
	lengthRatio := 1.0
	if avgFieldLength > 0 {
		lengthRatio = fieldLength / avgFieldLength
	}
	denominator := termFreq + K1*(1-B+B*lengthRatio)
	return (termFreq * (K1 + 1)) / denominator
}

// Score is the contribution of one term occurring termFreq times in a
// field of fieldLength tokens.
func Score(idf float64, termFreq uint32, fieldLength uint32, stats FieldStats) float64 {
	return idf * TFNorm(float64(termFreq), float64(fieldLength), stats.AvgFieldLength)
}

// Round trims a score to four decimals so that summation order noise never
// reorders results.
func Round(score float64) float64 {
	return math.Round(score*10000) / 10000
}
