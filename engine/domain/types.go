// Package domain defines core types, constants, and validation for the
// docsage engine pipeline. It acts as the validation gate at pipeline
// entry points.
package domain

// Chunk is a fixed-offset window of extracted document text. Chunks are
// immutable once produced; Index is the 0-based position in the document's
// chunk sequence and is the alignment key between the vector index and the
// citation metadata.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ChunksPerPage is the fixed heuristic used to attribute a page label to a
// chunk position.
const ChunksPerPage = 2

// PageOf returns the 1-based page label for a chunk position.
// TODO: track real page boundaries at extraction time instead of the fixed
// two-chunks-per-page mapping, which drifts on unevenly dense documents.
func PageOf(chunkIndex int) int {
	return chunkIndex/ChunksPerPage + 1
}

// Answer is the result of a retrieval-augmented query: the generated text
// plus the page labels of the context chunks, in retrieval rank order.
// Repeated pages are kept; they signal that several retrieved chunks came
// from the same page.
type Answer struct {
	Text      string `json:"text"`
	Citations []int  `json:"citations"`
}
