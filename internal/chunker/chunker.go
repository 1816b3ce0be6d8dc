package chunker

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Split breaks text into contiguous, non-overlapping slices of chunkSize
// characters. The final slice may be shorter. Whitespace-only slices are
// dropped. Emission stops once maxChunks is reached; that truncation is a
// documented capacity limit, not an error.
func Split(text string, maxChunks, chunkSize int) []string {
	if chunkSize <= 0 || maxChunks <= 0 {
		return nil
	}

	runes := []rune(text)
	var chunks []string
	truncated := false
	for start := 0; start < len(runes); start += chunkSize {
		if len(chunks) >= maxChunks {
			truncated = true
			break
		}
		end := min(start+chunkSize, len(runes))
		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}

	if truncated {
		log.Warn().Int("max_chunks", maxChunks).Msg("chunk limit reached, truncating content")
	}

	return chunks
}
