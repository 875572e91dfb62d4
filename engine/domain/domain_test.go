package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestPageOf(t *testing.T) {
	cases := []struct {
		chunk int
		page  int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
		{10, 6},
	}
	for _, c := range cases {
		if got := PageOf(c.chunk); got != c.page {
			t.Errorf("PageOf(%d) = %d, want %d", c.chunk, got, c.page)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{ErrInvalidArgument, "invalid_argument"},
		{ErrInvalidDocument, "invalid_document"},
		{ErrPayloadTooLarge, "payload_too_large"},
		{ErrNoExtractableText, "no_extractable_text"},
		{ErrSessionNotFound, "session_not_found"},
		{ErrDimensionMismatch, "dimension_mismatch"},
		{ErrEmbeddingCorrupt, "embedding_corrupt"},
		{ErrEmbedderUnavailable, "embedder_unavailable"},
		{ErrCompletionUnavailable, "completion_unavailable"},
		{ErrRateLimited, "rate_limited"},
		{ErrChunkConfig, "invalid_argument"},
		{errors.New("something else"), "internal"},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.kind {
			t.Errorf("KindOf(%v) = %q, want %q", c.err, got, c.kind)
		}
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("ingest: validate payload: %w", ErrPayloadTooLarge)
	if got := KindOf(err); got != "payload_too_large" {
		t.Errorf("wrapped KindOf = %q, want payload_too_large", got)
	}
}

func TestValidateQuery(t *testing.T) {
	cases := []struct {
		name      string
		sessionID string
		question  string
		wantErr   bool
	}{
		{"valid", "abc", "what is this about?", false},
		{"missing session", "", "question", true},
		{"blank session", "   ", "question", true},
		{"missing question", "abc", "", true},
		{"blank question", "abc", "\t\n", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateQuery(c.sessionID, c.question)
			if c.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Fatalf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
