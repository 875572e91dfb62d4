// Package chunker splits extracted document text into overlapping
// fixed-size windows for embedding and retrieval.
package chunker

import (
	"fmt"

	"github.com/docsage/docsage/engine/domain"
)

const (
	// DefaultSize is the window length in runes.
	DefaultSize = 512
	// DefaultOverlap is the number of runes shared between adjacent windows.
	DefaultOverlap = 128
)

// Chunker produces fixed-offset windows of text. Chunking is purely
// offset-based: no normalization and no sentence-boundary awareness, so a
// chunk's position fully determines its content.
type Chunker struct {
	Size    int
	Overlap int
}

// New returns a Chunker with the default window geometry.
func New() Chunker {
	return Chunker{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Split cuts text into overlapping windows. Each window starts Size-Overlap
// runes after the previous one; the final window may be shorter than Size.
// Output order is the alignment contract for the vector index and citation
// labels, so chunk i always carries Index i.
func (c Chunker) Split(text string) ([]domain.Chunk, error) {
	if c.Size <= 0 {
		return nil, fmt.Errorf("chunker: size %d must be positive: %w", c.Size, domain.ErrChunkConfig)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return nil, fmt.Errorf("chunker: overlap %d must satisfy 0 <= overlap < size %d: %w",
			c.Overlap, c.Size, domain.ErrChunkConfig)
	}

	runes := []rune(text)
	step := c.Size - c.Overlap

	var chunks []domain.Chunk
	for off := 0; off < len(runes); off += step {
		end := off + c.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, domain.Chunk{
			Index: len(chunks),
			Text:  string(runes[off:end]),
		})
	}
	return chunks, nil
}
