package relevance

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"docuchat/internal/embedding"
	"docuchat/internal/models"
)

// RemoteFinder is the optional backend scoring path. The engine falls back
// to local scoring when it errors and to recency when nothing qualifies.
type RemoteFinder interface {
	FindRelevant(ctx context.Context, query string, pool []models.Chunk, threshold float64, maxResults int) ([]models.Chunk, error)
}

// Engine scores pool chunks against a query and returns ranked context.
type Engine struct {
	vectorizer *embedding.Vectorizer
	remote     RemoteFinder
}

func NewEngine(vectorizer *embedding.Vectorizer, remote RemoteFinder) *Engine {
	return &Engine{vectorizer: vectorizer, remote: remote}
}

// CosineSimilarity is dot(a,b) / (||a||*||b||), clamped to [-1, 1]. It is 0
// for zero vectors and for mismatched dimensions; it never divides by zero
// and never panics.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim))
}

// FindRelevant returns at most maxResults pool chunks with similarity to the
// query at or above threshold, ranked descending, pool order preserved on
// equal scores. When the scoring path is unavailable or yields nothing for a
// non-empty pool, the most recently added chunks substitute as best-effort
// context. Never returns an error; an empty pool yields an empty result.
func (e *Engine) FindRelevant(ctx context.Context, query string, pool []models.Chunk, threshold float64, maxResults int) []models.Chunk {
	if len(pool) == 0 || maxResults <= 0 {
		return nil
	}

	if e.remote != nil {
		chunks, err := e.remote.FindRelevant(ctx, query, pool, threshold, maxResults)
		if err == nil {
			if len(chunks) > 0 {
				if len(chunks) > maxResults {
					chunks = chunks[:maxResults]
				}
				return chunks
			}
			log.Debug().Msg("remote scoring returned no qualifying chunks, using recent chunks")
			return recentChunks(pool, maxResults)
		}
		log.Warn().Err(err).Msg("remote scoring failed, falling back to local scoring")
	}

	queryVec, err := e.vectorizer.Embed(ctx, query)
	if err != nil {
		log.Warn().Err(err).Msg("query embedding unavailable, using recent chunks")
		return recentChunks(pool, maxResults)
	}

	chunks := rankByCosine(queryVec, pool, threshold, maxResults)
	if len(chunks) == 0 {
		log.Debug().Msg("no chunks met the similarity threshold, using recent chunks")
		return recentChunks(pool, maxResults)
	}
	return chunks
}

func rankByCosine(queryVec []float32, pool []models.Chunk, threshold float64, maxResults int) []models.Chunk {
	type scored struct {
		chunk models.Chunk
		sim   float64
	}

	var qualified []scored
	for _, c := range pool {
		sim := CosineSimilarity(queryVec, c.Vector)
		if sim >= threshold {
			qualified = append(qualified, scored{chunk: c, sim: sim})
		}
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].sim > qualified[j].sim
	})

	if len(qualified) > maxResults {
		qualified = qualified[:maxResults]
	}
	chunks := make([]models.Chunk, len(qualified))
	for i, s := range qualified {
		chunks[i] = s.chunk
	}
	return chunks
}

// recentChunks is the documented degraded mode: the tail of the append-only
// pool, in pool order.
func recentChunks(pool []models.Chunk, maxResults int) []models.Chunk {
	if len(pool) <= maxResults {
		return append([]models.Chunk(nil), pool...)
	}
	return append([]models.Chunk(nil), pool[len(pool)-maxResults:]...)
}
