// Package local implements a deterministic offline embedding provider.
// Tokens and their character trigrams are hashed into fixed buckets and the
// result is L2-normalized; the same text always yields the same vector.
// Retrieval quality is far below a real model, so this provider exists for
// development and tests without an API key.
package local

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/grantwatch/retrieval/internal/domain"
)

// Embedder hashes text into a fixed-dimension dense vector.
type Embedder struct {
	model string
	dim   int
}

// NewEmbedder creates a hashing embedder. The model identifier participates
// in bucket hashing so snapshots from different "models" never mix.
func NewEmbedder(model string, dim int) *Embedder {
	return &Embedder{model: model, dim: dim}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	vec := make([]float32, e.dim)
	for _, token := range tokenize(text) {
		e.addFeature(vec, token, 1.0)
		for _, gram := range trigrams(token) {
			e.addFeature(vec, gram, 0.5)
		}
	}
	domain.NormalizeVector(vec)
	return domain.EmbeddingResult{Embedding: vec}, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		embeddings[i] = res.Embedding
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
}

// addFeature hashes a feature into a bucket with a hash-derived sign, which
// keeps unrelated texts close to orthogonal in expectation.
func (e *Embedder) addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(e.model))
	h.Write([]byte{0})
	h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(len(vec)))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[bucket] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func trigrams(token string) []string {
	if len(token) <= 3 {
		return nil
	}
	grams := make([]string, 0, len(token)-2)
	for i := 0; i+3 <= len(token); i++ {
		grams = append(grams, token[i:i+3])
	}
	return grams
}
