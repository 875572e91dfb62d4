package rag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/docsage/docsage/engine/domain"
	"github.com/docsage/docsage/engine/index"
	"github.com/docsage/docsage/engine/session"
	"github.com/docsage/docsage/pkg/resilience"
)

// --- mocks ---

type mockEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	return m.vec, m.err
}

type mockCompleter struct {
	reply    string
	err      error
	calls    int
	lastUser string
}

func (m *mockCompleter) Complete(_ context.Context, _, user string) (string, error) {
	m.calls++
	m.lastUser = user
	return m.reply, m.err
}

type mockSessions struct {
	sess    *session.Session
	touches int
}

func (m *mockSessions) Get(id string) (*session.Session, bool) {
	if m.sess != nil && m.sess.ID == id {
		return m.sess, true
	}
	return nil, false
}

func (m *mockSessions) Touch(id string) bool {
	m.touches++
	return m.sess != nil && m.sess.ID == id
}

func testSession(t *testing.T, vectors [][]float32) *session.Session {
	t.Helper()
	ix, err := index.Build(vectors)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	chunks := make([]domain.Chunk, len(vectors))
	pages := make([]int, len(vectors))
	for i := range vectors {
		chunks[i] = domain.Chunk{Index: i, Text: string(rune('A' + i))}
		pages[i] = domain.PageOf(i)
	}
	return &session.Session{ID: "sess-1", Chunks: chunks, Index: ix, Pages: pages}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestAnswerSuccess(t *testing.T) {
	sess := testSession(t, [][]float32{
		{1, 0},   // chunk 0, page 1
		{0.9, 0}, // chunk 1, page 1
		{0, 1},   // chunk 2, page 2
		{-1, 0},  // chunk 3, page 2
	})
	sessions := &mockSessions{sess: sess}
	completer := &mockCompleter{reply: "It is covered on page 1."}

	svc := New(&mockEmbedder{vec: []float32{1, 0}}, completer, sessions, DefaultOptions(), quietLogger())

	ans, err := svc.Answer(context.Background(), "sess-1", "what is chunk A about?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.Text != "It is covered on page 1." {
		t.Errorf("unexpected text: %s", ans.Text)
	}

	// Top 3 by cosine: chunks 0, 1, 2 → pages 1, 1, 2; duplicates kept.
	want := []int{1, 1, 2}
	if len(ans.Citations) != len(want) {
		t.Fatalf("citations = %v, want %v", ans.Citations, want)
	}
	for i, p := range want {
		if ans.Citations[i] != p {
			t.Fatalf("citations = %v, want %v", ans.Citations, want)
		}
	}

	// Context holds the chunk texts joined in rank order.
	if !strings.Contains(completer.lastUser, "A\nB\nC") {
		t.Errorf("prompt context not in rank order: %q", completer.lastUser)
	}
	if !strings.Contains(completer.lastUser, "what is chunk A about?") {
		t.Errorf("prompt lost the verbatim question: %q", completer.lastUser)
	}

	if sessions.touches != 1 {
		t.Errorf("expected exactly one touch, got %d", sessions.touches)
	}
}

func TestAnswerUnknownSession(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{1, 0}}
	completer := &mockCompleter{reply: "never"}
	svc := New(embedder, completer, &mockSessions{}, DefaultOptions(), quietLogger())

	_, err := svc.Answer(context.Background(), "missing", "question")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	// No model cost may be spent on a dead session.
	if embedder.calls != 0 || completer.calls != 0 {
		t.Fatalf("models were called for unknown session: embed=%d complete=%d", embedder.calls, completer.calls)
	}
}

func TestAnswerEmbedFailure(t *testing.T) {
	sess := testSession(t, [][]float32{{1, 0}})
	svc := New(
		&mockEmbedder{err: domain.ErrEmbedderUnavailable},
		&mockCompleter{},
		&mockSessions{sess: sess},
		DefaultOptions(),
		quietLogger(),
	)

	_, err := svc.Answer(context.Background(), "sess-1", "q")
	if !errors.Is(err, domain.ErrEmbedderUnavailable) {
		t.Fatalf("expected ErrEmbedderUnavailable, got %v", err)
	}
}

func TestAnswerOutOfRangeHitsFiltered(t *testing.T) {
	// A session whose index disagrees with its chunk count: 4 vectors but
	// only 2 chunks. Hits for chunks 2 and 3 must be dropped, not read.
	ix, err := index.Build([][]float32{{1, 0}, {0.9, 0.1}, {0.8, 0.2}, {0.7, 0.3}})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	sess := &session.Session{
		ID:     "sess-1",
		Chunks: []domain.Chunk{{Index: 0, Text: "A"}, {Index: 1, Text: "B"}},
		Index:  ix,
		Pages:  []int{1, 1},
	}
	completer := &mockCompleter{reply: "ok"}
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, completer, &mockSessions{sess: sess}, Options{TopK: 4}, quietLogger())

	ans, err := svc.Answer(context.Background(), "sess-1", "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ans.Citations) != 2 {
		t.Fatalf("citations = %v, want the two in-range pages", ans.Citations)
	}
	if strings.Contains(completer.lastUser, NoContextSentinel) {
		t.Fatal("sentinel used although in-range chunks remained")
	}
}

func TestAnswerNoValidContext(t *testing.T) {
	// Every hit out of range → sentinel context, empty citations, and the
	// completion still runs: this is a normal outcome.
	ix, err := index.Build([][]float32{{1, 0}})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	sess := &session.Session{ID: "sess-1", Chunks: nil, Index: ix, Pages: nil}
	completer := &mockCompleter{reply: "I cannot find that in the document."}
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, completer, &mockSessions{sess: sess}, DefaultOptions(), quietLogger())

	ans, err := svc.Answer(context.Background(), "sess-1", "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ans.Citations) != 0 {
		t.Fatalf("citations = %v, want empty", ans.Citations)
	}
	if completer.calls != 1 {
		t.Fatal("completion must still run with the sentinel context")
	}
	if !strings.Contains(completer.lastUser, NoContextSentinel) {
		t.Fatalf("prompt missing sentinel: %q", completer.lastUser)
	}
}

func TestAnswerCompletionFailure(t *testing.T) {
	sess := testSession(t, [][]float32{{1, 0}})
	svc := New(
		&mockEmbedder{vec: []float32{1, 0}},
		&mockCompleter{err: errors.New("upstream 500")},
		&mockSessions{sess: sess},
		DefaultOptions(),
		quietLogger(),
	)

	_, err := svc.Answer(context.Background(), "sess-1", "q")
	if !errors.Is(err, domain.ErrCompletionUnavailable) {
		t.Fatalf("expected ErrCompletionUnavailable, got %v", err)
	}
}

func TestAnswerBreakerShortCircuits(t *testing.T) {
	sess := testSession(t, [][]float32{{1, 0}})
	completer := &mockCompleter{err: errors.New("upstream 500")}
	sessions := &mockSessions{sess: sess}
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, completer, sessions, DefaultOptions(), quietLogger())
	svc.breaker = resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 2})

	ctx := context.Background()
	svc.Answer(ctx, "sess-1", "q")
	svc.Answer(ctx, "sess-1", "q")

	before := completer.calls
	_, err := svc.Answer(ctx, "sess-1", "q")
	if !errors.Is(err, domain.ErrCompletionUnavailable) {
		t.Fatalf("expected ErrCompletionUnavailable from open breaker, got %v", err)
	}
	if completer.calls != before {
		t.Fatal("provider was called although the breaker is open")
	}
	// A failed answer never counts as a use of the session.
	if sessions.touches != 0 {
		t.Fatalf("failed answers touched the session %d times", sessions.touches)
	}
}

func TestUserPrompt(t *testing.T) {
	p := userPrompt("some context", "a question?")
	if !strings.HasPrefix(p, "Context:\nsome context") || !strings.HasSuffix(p, "Question: a question?") {
		t.Fatalf("unexpected prompt shape: %q", p)
	}
}
