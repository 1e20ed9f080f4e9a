package domain

import "math"

// Candidate is a raw nearest-neighbor hit from the vector index,
// before metadata hydration and filtering.
type Candidate struct {
	OpportunityID string
	Score         float64
}

// NormalizeVector L2-normalizes v in place so that inner product equals
// cosine similarity. A zero vector is left untouched.
func NormalizeVector(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// InnerProduct computes the dot product of two equal-length vectors,
// accumulating in float64 for stability.
func InnerProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
