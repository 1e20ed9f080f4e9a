package domain

import (
	"math"
	"testing"
)

func TestNormalizeVector(t *testing.T) {
	v := []float32{3, 4}
	NormalizeVector(v)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("squared norm = %f, want 1.0", norm)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalized = %v, want [0.6 0.8]", v)
	}
}

func TestNormalizeVector_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	NormalizeVector(v)
	for i, x := range v {
		if x != 0 {
			t.Errorf("v[%d] = %f, want 0", i, x)
		}
	}
}

func TestInnerProduct(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	if got := InnerProduct(a, b); math.Abs(got-32) > 1e-9 {
		t.Errorf("InnerProduct = %f, want 32", got)
	}
}

func TestInnerProduct_NormalizedSelfSimilarity(t *testing.T) {
	v := []float32{0.3, -1.2, 0.5, 2.0}
	NormalizeVector(v)
	if got := InnerProduct(v, v); math.Abs(got-1.0) > 1e-6 {
		t.Errorf("self similarity = %f, want 1.0", got)
	}
}
