package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docuchat/internal/config"
)

// ErrEmbeddingUnavailable wraps any provider init or call failure so callers
// can degrade to fallback retrieval instead of failing the session.
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// Provider produces a fixed-length vector for a piece of text.
type Provider interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Vectorizer owns the embedding provider as a lazily-initialized resource:
// created on first call, reused for the rest of the process, never reloaded
// mid-session. The vector dimension is pinned by the first successful embed
// and a later mismatch is an error, not an approximation.
type Vectorizer struct {
	newProvider func() (Provider, error)

	once     sync.Once
	provider Provider
	initErr  error

	mu  sync.Mutex
	dim int
}

// NewVectorizer builds a vectorizer over the configured langchaingo
// embedder. The provider is not contacted until the first Embed call.
func NewVectorizer(cfg *config.LLMConfig) *Vectorizer {
	return &Vectorizer{
		newProvider: func() (Provider, error) {
			if strings.EqualFold(cfg.Provider, "openai") {
				return newOpenAIEmbedder(cfg)
			}
			return newOllamaEmbedder(cfg)
		},
	}
}

// NewVectorizerWithProvider is the injection point for tests and for the
// remote backend's vectorize endpoint.
func NewVectorizerWithProvider(p Provider) *Vectorizer {
	return &Vectorizer{newProvider: func() (Provider, error) { return p, nil }}
}

func newOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

func newOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

// Embed turns text into a vector of the process-constant dimension.
func (v *Vectorizer) Embed(ctx context.Context, text string) ([]float32, error) {
	v.once.Do(func() {
		v.provider, v.initErr = v.newProvider()
		if v.initErr != nil {
			log.Error().Err(v.initErr).Msg("Error initializing embedding provider")
		}
	})
	if v.initErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, v.initErr)
	}

	vec, err := v.provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: provider returned empty vector", ErrEmbeddingUnavailable)
	}

	v.mu.Lock()
	if v.dim == 0 {
		v.dim = len(vec)
	}
	dim := v.dim
	v.mu.Unlock()

	if len(vec) != dim {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), dim)
	}
	return vec, nil
}

// Dimension reports the pinned vector dimension, 0 before the first
// successful embed.
func (v *Vectorizer) Dimension() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dim
}
