package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// requestsPerMinute paces outbound embedding calls under the provider's
// request quota so 429 retries stay the exception.
const requestsPerMinute = 3000

// openaiProvider backs the gateway with the OpenAI embeddings API.
type openaiProvider struct {
	client *openai.Client
	model  openai.EmbeddingModel
	pace   *rate.Limiter
}

func newOpenAIProvider(cfg Config) (provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embedding API key not set")
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &openaiProvider{
		client: &client,
		model:  openai.EmbeddingModel(cfg.Model),
		pace:   rate.NewLimiter(rate.Every(time.Minute/requestsPerMinute), cfg.Workers),
	}, nil
}

// CreateEmbeddings calls the embeddings endpoint, retrying rate-limit
// responses with exponential backoff. Other provider errors are permanent.
func (p *openaiProvider) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32

	operation := func() error {
		if err := p.pace.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: p.model,
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
		}
		out = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			out[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 vectors; float32 halves index memory
// at no retrieval-quality cost.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
