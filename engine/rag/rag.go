// Package rag orchestrates the retrieval-augmented answering pipeline. It
// accepts a user question against an existing session, embeds it, retrieves
// the most similar chunks, builds a prompt, and delegates to the completion
// provider, attaching page citations to the result.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docsage/docsage/engine/domain"
	"github.com/docsage/docsage/engine/index"
	"github.com/docsage/docsage/engine/session"
	"github.com/docsage/docsage/pkg/fn"
	"github.com/docsage/docsage/pkg/resilience"
)

// Embedder turns a question into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer generates the final answer text from a prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// SessionStore is the slice of the session store this service needs.
type SessionStore interface {
	Get(id string) (*session.Session, bool)
	Touch(id string) bool
}

// NoContextSentinel is the context handed to the completion provider when
// retrieval yields nothing usable. This is a normal outcome, not an error.
const NoContextSentinel = "No relevant context found"

// Options configures the answering pipeline.
type Options struct {
	// TopK is how many chunks are retrieved per question.
	TopK int
	// Timeout bounds the completion call.
	Timeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:    3,
		Timeout: 60 * time.Second,
	}
}

// Service is the answering orchestrator.
type Service struct {
	embed    Embedder
	complete Completer
	sessions SessionStore
	breaker  *resilience.Breaker
	opts     Options
	log      *slog.Logger
}

// New creates an answering Service. The breaker guards the completion
// provider; when it is open the provider is not called at all and the
// failure surfaces as ErrCompletionUnavailable.
func New(embedder Embedder, completer Completer, sessions SessionStore, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Service{
		embed:    embedder,
		complete: completer,
		sessions: sessions,
		breaker:  resilience.NewBreaker(resilience.DefaultBreakerOpts),
		opts:     opts,
		log:      logger,
	}
}

// Answer runs the full query pipeline for one question.
func (s *Service) Answer(ctx context.Context, sessionID, question string) (*domain.Answer, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("rag: session %q: %w", sessionID, domain.ErrSessionNotFound)
	}

	query, err := s.embed.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("rag: embed question: %w", err)
	}

	hits, err := sess.Index.Search(query, s.opts.TopK)
	if err != nil {
		// A mismatched or corrupted index is always a defect; be loud.
		s.log.Error("rag: index search failed", "session", sessionID, "err", err)
		return nil, fmt.Errorf("rag: search: %w", err)
	}

	contextText, citations := assembleContext(sess, hits, s.log)

	answerText, err := s.completeWithBreaker(ctx, userPrompt(contextText, question))
	if err != nil {
		return nil, err
	}

	s.sessions.Touch(sessionID)

	return &domain.Answer{Text: answerText, Citations: citations}, nil
}

// assembleContext turns ranked hits into the prompt context and the page
// citations, both in rank order. Hits pointing outside the chunk range are
// dropped rather than read: an index bug must never cause an out-of-bounds
// read or take other sessions down with it.
func assembleContext(sess *session.Session, hits []index.Hit, log *slog.Logger) (string, []int) {
	valid := fn.Filter(hits, func(h index.Hit) bool {
		return h.Chunk >= 0 && h.Chunk < len(sess.Chunks)
	})
	if dropped := len(hits) - len(valid); dropped > 0 {
		log.Error("rag: dropped out-of-range chunk indices", "session", sess.ID, "dropped", dropped)
	}

	if len(valid) == 0 {
		return NoContextSentinel, []int{}
	}

	texts := fn.Map(valid, func(h index.Hit) string { return sess.Chunks[h.Chunk].Text })
	pages := fn.Map(valid, func(h index.Hit) int { return sess.Pages[h.Chunk] })
	return strings.Join(texts, "\n"), pages
}

// completeWithBreaker calls the completion provider through the circuit
// breaker under the configured timeout. Any failure, including an open
// breaker, maps to ErrCompletionUnavailable; retrying is the transport
// layer's decision, not ours.
func (s *Service) completeWithBreaker(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	result := resilience.CallResult(s.breaker, ctx, func(ctx context.Context) fn.Result[string] {
		return fn.FromPair(s.complete.Complete(ctx, systemPrompt, prompt))
	})

	text, err := result.Unwrap()
	if err != nil {
		if errors.Is(err, domain.ErrCompletionUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("rag: completion: %s: %w", err, domain.ErrCompletionUnavailable)
	}
	return text, nil
}

const systemPrompt = `You are an assistant answering questions about a single uploaded document.
Answer using ONLY the provided context and cite the page numbers you relied on.
If the context does not contain the answer, say that it does not.`

func userPrompt(contextText, question string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)
}
