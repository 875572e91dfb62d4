package index

import (
	"errors"
	"math"
	"testing"

	"github.com/docsage/docsage/engine/domain"
)

func TestBuildRejectsMixedDimensions(t *testing.T) {
	_, err := Build([][]float32{
		{1, 0, 0},
		{0, 1},
	})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearchSelfSimilarity(t *testing.T) {
	v := []float32{0.3, -0.7, 0.2, 0.5}
	ix, err := Build([][]float32{v})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	hits, err := ix.Search(v, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if math.Abs(hits[0].Score-1) > 1e-9 {
		t.Errorf("self similarity = %v, want 1", hits[0].Score)
	}
}

func TestSearchZeroVectorScoresZero(t *testing.T) {
	ix, err := Build([][]float32{
		{0, 0, 0},
		{1, 0, 0},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// Zero stored vector against a real query.
	hits, err := ix.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits[0].Chunk != 1 || hits[0].Score <= 0 {
		t.Errorf("expected chunk 1 first, got %+v", hits)
	}
	if hits[1].Chunk != 0 || hits[1].Score != 0 {
		t.Errorf("zero vector should score exactly 0, got %+v", hits[1])
	}

	// Zero query against everything: all scores 0, never NaN.
	hits, err = ix.Search([]float32{0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("zero query search: %v", err)
	}
	for _, h := range hits {
		if h.Score != 0 || math.IsNaN(h.Score) {
			t.Errorf("zero query hit %+v, want score 0", h)
		}
	}
}

func TestSearchOrderingAndTies(t *testing.T) {
	// Chunks 1 and 3 tie exactly; the lower position must win.
	ix, err := Build([][]float32{
		{0, 1},  // orthogonal
		{1, 0},  // identical direction, ties with chunk 3
		{-1, 0}, // opposite
		{2, 0},  // identical direction (same cosine as chunk 1)
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	hits, err := ix.Search([]float32{1, 0}, 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	want := []int{1, 3, 0, 2}
	for i, h := range hits {
		if h.Chunk != want[i] {
			t.Fatalf("rank %d: got chunk %d, want %d (hits=%+v)", i, h.Chunk, want[i], hits)
		}
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatalf("hits not sorted by descending score: %+v", hits)
		}
	}
}

func TestSearchTruncatesToK(t *testing.T) {
	ix, err := Build([][]float32{{1, 0}, {0, 1}, {1, 1}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	hits, err := ix.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}

	// k larger than the index size returns everything.
	hits, err = ix.Search([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	ix, err := Build(nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	hits, err := ix.Search([]float32{1, 2, 3}, 3)
	if err != nil {
		t.Fatalf("empty index search must not error: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %+v", hits)
	}
}

func TestSearchInvalidK(t *testing.T) {
	ix, err := Build([][]float32{{1, 0}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, k := range []int{0, -1} {
		if _, err := ix.Search([]float32{1, 0}, k); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("k=%d: expected ErrInvalidArgument, got %v", k, err)
		}
	}
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	ix, err := Build([][]float32{{1, 0, 0}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := ix.Search([]float32{1, 0}, 1); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}
