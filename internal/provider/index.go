package provider

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
)

// Embedder is the slice of EmbedClient the index needs. Split out so tests
// can supply canned vectors without a live backend.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbeddingIndex matches messages against route utterances by cosine
// similarity. Utterance vectors are computed once at build time; per request
// only the incoming message is embedded. Read-only after Build, so it is
// shared across concurrent requests without locking.
type EmbeddingIndex struct {
	embedder Embedder
	routes   map[string][][]float64
}

// NewEmbeddingIndex creates an empty index over the given embedder.
func NewEmbeddingIndex(embedder Embedder) *EmbeddingIndex {
	return &EmbeddingIndex{
		embedder: embedder,
		routes:   make(map[string][][]float64),
	}
}

// Build embeds every utterance of every route. Routes whose utterances all
// fail to embed are dropped with a warning rather than failing startup; a
// missing route simply never matches.
func (idx *EmbeddingIndex) Build(ctx context.Context, routes map[string][]string) error {
	names := make([]string, 0, len(routes))
	for name := range routes {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		var vectors [][]float64
		for _, utterance := range routes[name] {
			vec, err := idx.embedder.Embed(ctx, utterance)
			if err != nil {
				log.Warn().Err(err).Str("route", name).Str("utterance", utterance).
					Msg("failed to embed utterance")
				continue
			}
			vectors = append(vectors, vec)
		}
		if len(vectors) == 0 {
			log.Warn().Str("route", name).Msg("route has no usable utterance embeddings")
			continue
		}
		idx.routes[name] = vectors
		total += len(vectors)
	}

	if len(idx.routes) == 0 && len(routes) > 0 {
		return fmt.Errorf("no route utterances could be embedded")
	}
	log.Debug().Int("routes", len(idx.routes)).Int("vectors", total).Msg("embedding index built")
	return nil
}

// Match embeds the message and returns the best-scoring route name with its
// cosine similarity. Implements the embedding matcher used by cascade stages.
func (idx *EmbeddingIndex) Match(ctx context.Context, message string) (string, float64, error) {
	if len(idx.routes) == 0 {
		return "", 0, fmt.Errorf("embedding index is empty")
	}
	vec, err := idx.embedder.Embed(ctx, message)
	if err != nil {
		return "", 0, err
	}

	bestRoute := ""
	bestScore := math.Inf(-1)
	for name, vectors := range idx.routes {
		for _, utteranceVec := range vectors {
			score := cosine(vec, utteranceVec)
			if score > bestScore {
				bestScore = score
				bestRoute = name
			}
		}
	}
	if bestRoute == "" {
		return "", 0, fmt.Errorf("no comparable vectors")
	}
	return bestRoute, bestScore, nil
}

// cosine returns the cosine similarity of two vectors, 0 for mismatched or
// zero-magnitude inputs.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
