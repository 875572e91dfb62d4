// Package index provides the in-memory nearest-neighbor index used for
// retrieval. One index is built per ingested document and is immutable
// afterward; there is exactly one index implementation and no fallback
// search strategy.
package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/docsage/docsage/engine/domain"
)

// Hit is a single search result: the chunk position the matched vector is
// aligned with, and its cosine similarity to the query.
type Hit struct {
	Chunk int
	Score float64
}

// Index stores one vector per chunk, positionally aligned with the owning
// session's chunk sequence. Built once, read-only afterward, so it is safe
// for concurrent searches without locking.
type Index struct {
	dim   int
	vecs  [][]float32
	norms []float64
}

// Build constructs an index from the full vector set. All vectors must
// share the same dimension. Vector norms are precomputed so each search
// costs one dot product per stored vector.
func Build(vectors [][]float32) (*Index, error) {
	ix := &Index{}
	if len(vectors) == 0 {
		return ix, nil
	}

	ix.dim = len(vectors[0])
	ix.vecs = make([][]float32, len(vectors))
	ix.norms = make([]float64, len(vectors))
	for i, v := range vectors {
		if len(v) != ix.dim {
			return nil, fmt.Errorf("index: vector %d has dimension %d, index has %d: %w",
				i, len(v), ix.dim, domain.ErrDimensionMismatch)
		}
		ix.vecs[i] = v
		ix.norms[i] = norm(v)
	}
	return ix, nil
}

// Len returns the number of stored vectors.
func (ix *Index) Len() int { return len(ix.vecs) }

// Dim returns the vector dimension, or 0 for an empty index.
func (ix *Index) Dim() int { return ix.dim }

// Search returns the min(k, Len) chunks most similar to query, best first.
// Ties break toward the lower chunk position so identical documents and
// queries always rank identically. An empty index yields an empty result,
// never an error.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("index: k=%d must be positive: %w", k, domain.ErrInvalidArgument)
	}
	if ix.Len() == 0 {
		return []Hit{}, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("index: query dimension %d, index dimension %d: %w",
			len(query), ix.dim, domain.ErrDimensionMismatch)
	}

	qn := norm(query)
	hits := make([]Hit, len(ix.vecs))
	for i, v := range ix.vecs {
		hits[i] = Hit{Chunk: i, Score: cosine(query, qn, v, ix.norms[i])}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Chunk < hits[b].Chunk
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// cosine computes dot(a,b)/(|a|·|b|) with precomputed norms. A zero-norm
// operand scores 0 rather than NaN, so zero vectors can never error out or
// claim a top rank.
func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
