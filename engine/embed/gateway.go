// Package embed wraps the text-embedding provider behind a gateway that
// owns the provider handle, bounds call latency, and validates every vector
// before it can reach an index.
package embed

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/docsage/docsage/engine/domain"
	"github.com/docsage/docsage/pkg/fn"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "text-embedding-3-small"
	// DefaultTimeout bounds a single provider call so a hung upstream
	// surfaces as ErrEmbedderUnavailable instead of a leaked request.
	DefaultTimeout = 30 * time.Second
	// DefaultBatchSize is the max texts per provider request.
	DefaultBatchSize = 100
	// DefaultWorkers bounds concurrent provider requests within one batch.
	DefaultWorkers = 4
)

// Config configures the Gateway.
type Config struct {
	APIKey    string
	Model     string
	Timeout   time.Duration
	BatchSize int
	Workers   int
}

// provider is the raw embedding call the gateway delegates to.
type provider interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Gateway memoizes one provider handle for the whole process and exposes
// Embed / EmbedBatch on top of it. The handle is built lazily on first use;
// once initialized it is read-only and safe for concurrent callers.
type Gateway struct {
	cfg         Config
	newProvider func(Config) (provider, error)

	once    sync.Once
	prov    provider
	initErr error

	mu  sync.Mutex
	dim int // fixed by the first successful embed call
}

// NewGateway creates a Gateway. The provider handle is not built until the
// first embed call.
func NewGateway(cfg Config) *Gateway {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Gateway{cfg: cfg, newProvider: newOpenAIProvider}
}

// ensureReady builds the provider handle at most once, even when multiple
// requests race on first use. A failed initialization is memoized so later
// calls fail fast rather than rebuilding a handle that cannot recover.
func (g *Gateway) ensureReady() error {
	g.once.Do(func() {
		p, err := g.newProvider(g.cfg)
		if err != nil {
			g.initErr = fmt.Errorf("embed: init provider: %s: %w", err, domain.ErrEmbedderUnavailable)
			return
		}
		g.prov = p
	})
	return g.initErr
}

// Embed returns the embedding vector for a single text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, preserving input order. Texts are split into
// provider-sized batches dispatched concurrently with bounded workers; any
// single batch failure fails the whole call.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := g.ensureReady(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	batches := splitBatches(texts, g.cfg.BatchSize)
	results := fn.ParMapResult(batches, g.cfg.Workers, func(batch []string) fn.Result[[][]float32] {
		return fn.FromPair(g.embedBatch(ctx, batch))
	})

	collected, err := fn.Collect(results).Unwrap()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for _, vecs := range collected {
		out = append(out, vecs...)
	}
	return out, nil
}

// embedBatch performs one provider call under the configured timeout and
// validates the returned vectors.
func (g *Gateway) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	vecs, err := g.prov.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed: provider call: %s: %w", err, domain.ErrEmbedderUnavailable)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed: provider returned %d vectors for %d texts: %w",
			len(vecs), len(texts), domain.ErrEmbedderUnavailable)
	}
	for i, v := range vecs {
		if err := g.admitVector(v); err != nil {
			return nil, fmt.Errorf("embed: vector %d: %w", i, err)
		}
	}
	return vecs, nil
}

// admitVector rejects non-finite components and pins the process-wide
// dimension on the first successful embed. A corrupt vector must never
// reach an index: it would silently poison every later similarity score.
func (g *Gateway) admitVector(v []float32) error {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return domain.ErrEmbeddingCorrupt
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dim == 0 {
		g.dim = len(v)
		return nil
	}
	if len(v) != g.dim {
		return fmt.Errorf("got dimension %d, process dimension is %d: %w",
			len(v), g.dim, domain.ErrDimensionMismatch)
	}
	return nil
}

func splitBatches(texts []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[i:end])
	}
	return out
}
