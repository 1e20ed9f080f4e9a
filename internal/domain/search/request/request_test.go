package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/grantwatch/retrieval/internal/domain"
	"github.com/grantwatch/retrieval/internal/domain/search/filter"
)

func TestNew_Valid(t *testing.T) {
	req, err := New("climate research funding", 25, 0.3, filter.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Query() != "climate research funding" {
		t.Errorf("Query() = %q", req.Query())
	}
	if req.TopK() != 25 {
		t.Errorf("TopK() = %d, want 25", req.TopK())
	}
	if req.MinScore() != 0.3 {
		t.Errorf("MinScore() = %f, want 0.3", req.MinScore())
	}
}

func TestNew_EmptyQuery(t *testing.T) {
	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := New(q, 10, 0, filter.Filter{})
		if !errors.Is(err, domain.ErrInvalidQuery) {
			t.Errorf("query %q: err = %v, want ErrInvalidQuery", q, err)
		}
	}
}

func TestNew_QueryTooLong(t *testing.T) {
	_, err := New(strings.Repeat("x", MaxQueryLength+1), 10, 0, filter.Filter{})
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("err = %v, want ErrInvalidQuery", err)
	}
}

func TestNew_InvalidTopK(t *testing.T) {
	for _, k := range []int{0, -1} {
		_, err := New("query", k, 0, filter.Filter{})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("topK %d: err = %v, want ErrInvalidArgument", k, err)
		}
	}
}

func TestNew_TopKClamped(t *testing.T) {
	req, err := New("query", MaxTopK+100, 0, filter.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.TopK() != MaxTopK {
		t.Errorf("TopK() = %d, want %d", req.TopK(), MaxTopK)
	}
}

func TestNew_MinScoreRange(t *testing.T) {
	for _, s := range []float64{-1.5, 1.5} {
		_, err := New("query", 10, s, filter.Filter{})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("minScore %f: err = %v, want ErrInvalidArgument", s, err)
		}
	}
	for _, s := range []float64{-1, 0, 1} {
		if _, err := New("query", 10, s, filter.Filter{}); err != nil {
			t.Errorf("minScore %f: unexpected error: %v", s, err)
		}
	}
}
