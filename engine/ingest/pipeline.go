// Package ingest provides the document ingestion pipeline that processes an
// uploaded PDF through validation, text extraction, chunking, embedding, and
// session registration stages.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docsage/docsage/engine/chunker"
	"github.com/docsage/docsage/engine/domain"
	"github.com/docsage/docsage/engine/index"
	"github.com/docsage/docsage/pkg/fn"
	"github.com/docsage/docsage/pkg/metrics"
)

// DefaultMaxBytes is the upload size ceiling applied when Deps.MaxBytes is
// zero.
const DefaultMaxBytes = 50 << 20

// Embedder is the slice of the embedding gateway this pipeline needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SessionRegistry registers a fully built document bundle and returns its
// session identifier.
type SessionRegistry interface {
	Create(chunks []domain.Chunk, ix *index.Index, pages []int) (string, error)
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Embedder Embedder
	Sessions SessionRegistry
	Chunker  chunker.Chunker
	// MaxBytes rejects payloads larger than this before any parsing work.
	MaxBytes int64
	Logger   *slog.Logger
	// Metrics is optional; when set the pipeline tracks ingest outcomes.
	Metrics *metrics.Registry
}

// --- Pipeline stage payloads ---

type chunkedDoc struct {
	Chunks []domain.Chunk
}

type embeddedDoc struct {
	Chunks  []domain.Chunk
	Vectors [][]float32
}

// Pipeline runs one uploaded document through all ingestion stages. Ingestion
// is all-or-nothing: a failure at any stage leaves no session behind.
type Pipeline struct {
	run fn.Stage[[]byte, string]
	log *slog.Logger

	total    *metrics.Counter
	failures *metrics.Counter
	duration *metrics.Histogram
}

// NewPipeline constructs the full ingestion pipeline with all stages wired.
func NewPipeline(deps Deps) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.MaxBytes <= 0 {
		deps.MaxBytes = DefaultMaxBytes
	}
	if deps.Chunker == (chunker.Chunker{}) {
		deps.Chunker = chunker.New()
	}

	p := &Pipeline{log: log}
	if deps.Metrics != nil {
		p.total = deps.Metrics.Counter("docsage_ingest_total", "Documents accepted for ingestion.")
		p.failures = deps.Metrics.Counter("docsage_ingest_failures_total", "Documents that failed ingestion.")
		p.duration = deps.Metrics.Histogram("docsage_ingest_duration_seconds", "End-to-end ingestion latency.", nil)
	}

	// Compose: Validate → Extract → Chunk → Embed → Register
	// with entry/exit logging around each stage.
	validated := logged("validate", log, fn.TracedStage("ingest.validate", newValidate(deps.MaxBytes)))
	extracted := fn.Then(validated, logged("extract", log, fn.TracedStage("ingest.extract", Extract)))
	chunked := fn.Then(extracted, logged("chunk", log, fn.TracedStage("ingest.chunk", newChunk(deps.Chunker))))
	embedded := fn.Then(chunked, logged("embed", log, fn.TracedStage("ingest.embed", newEmbed(deps.Embedder))))
	registered := fn.Then(embedded, logged("register", log, fn.TracedStage("ingest.register", newRegister(deps.Sessions))))

	p.run = registered
	return p
}

// Ingest runs raw upload bytes through the pipeline and returns the new
// session id.
func (p *Pipeline) Ingest(ctx context.Context, raw []byte) (string, error) {
	start := time.Now()
	if p.total != nil {
		p.total.Inc()
	}

	id, err := p.run(ctx, raw).Unwrap()
	if err != nil {
		if p.failures != nil {
			p.failures.Inc()
		}
		p.log.Warn("ingest failed", "bytes", len(raw), "err", err)
		return "", err
	}

	if p.duration != nil {
		p.duration.Since(start)
	}
	p.log.Info("ingest complete", "session", id, "bytes", len(raw), "duration", time.Since(start))
	return id, nil
}

// --- Pipeline stages ---

// newValidate rejects payloads that are oversized or not PDFs before any
// parsing work is spent on them.
func newValidate(maxBytes int64) fn.Stage[[]byte, []byte] {
	return func(_ context.Context, raw []byte) fn.Result[[]byte] {
		if int64(len(raw)) > maxBytes {
			return fn.Errf[[]byte]("ingest: %d bytes exceeds limit %d: %w", len(raw), maxBytes, domain.ErrPayloadTooLarge)
		}
		if !isPDF(raw) {
			return fn.Errf[[]byte]("ingest: payload is not a PDF: %w", domain.ErrInvalidDocument)
		}
		return fn.Ok(raw)
	}
}

// Extract parses the PDF and concatenates its plain text.
var Extract fn.Stage[[]byte, string] = func(_ context.Context, raw []byte) fn.Result[string] {
	text, err := extractText(raw)
	if err != nil {
		return fn.Err[string](err)
	}
	return checkText(text)
}

// checkText rejects documents whose text layer is empty or whitespace only.
// Scanned PDFs parse fine but yield nothing to chunk.
func checkText(text string) fn.Result[string] {
	if strings.TrimSpace(text) == "" {
		return fn.Errf[string]("ingest: document contains no text layer: %w", domain.ErrNoExtractableText)
	}
	return fn.Ok(text)
}

// newChunk splits extracted text into overlapping windows.
func newChunk(c chunker.Chunker) fn.Stage[string, chunkedDoc] {
	return func(_ context.Context, text string) fn.Result[chunkedDoc] {
		chunks, err := c.Split(text)
		if err != nil {
			return fn.Err[chunkedDoc](err)
		}
		if len(chunks) == 0 {
			return fn.Errf[chunkedDoc]("ingest: chunking produced nothing: %w", domain.ErrNoExtractableText)
		}
		return fn.Ok(chunkedDoc{Chunks: chunks})
	}
}

// newEmbed embeds every chunk in one batched call.
func newEmbed(embedder Embedder) fn.Stage[chunkedDoc, embeddedDoc] {
	return func(ctx context.Context, doc chunkedDoc) fn.Result[embeddedDoc] {
		texts := fn.Map(doc.Chunks, func(c domain.Chunk) string { return c.Text })
		vecs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fn.Err[embeddedDoc](fmt.Errorf("ingest: embed chunks: %w", err))
		}
		if len(vecs) != len(doc.Chunks) {
			return fn.Errf[embeddedDoc]("ingest: %d vectors for %d chunks: %w",
				len(vecs), len(doc.Chunks), domain.ErrEmbedderUnavailable)
		}
		return fn.Ok(embeddedDoc{Chunks: doc.Chunks, Vectors: vecs})
	}
}

// newRegister builds the vector index, attaches page labels, and registers
// the session. Nothing before this stage has any observable effect, so a
// failure anywhere leaves the store untouched.
func newRegister(sessions SessionRegistry) fn.Stage[embeddedDoc, string] {
	return func(_ context.Context, doc embeddedDoc) fn.Result[string] {
		ix, err := index.Build(doc.Vectors)
		if err != nil {
			return fn.Err[string](fmt.Errorf("ingest: build index: %w", err))
		}
		pages := fn.Map(doc.Chunks, func(c domain.Chunk) int { return domain.PageOf(c.Index) })
		return fn.FromPair(sessions.Create(doc.Chunks, ix, pages))
	}
}

// logged wraps a stage with entry/exit logs carrying the stage's duration.
func logged[In, Out any](name string, log *slog.Logger, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		out := stage(ctx, in)
		log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		return out
	}
}
