package processor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"docuchat/internal/chunker"
	"docuchat/internal/embedding"
	"docuchat/internal/models"
)

const previewChars = 1000

// Result is a processed document: the extracted text, a short preview for
// the UI, and the vectorized chunk set. Chunks is never empty.
type Result struct {
	Kind         Kind
	OriginalText string
	Preview      string
	PreviewHTML  string
	Chunks       []models.Chunk
}

// Processor drives per-kind text extraction, chunking, and vectorization.
// It converts every failure into a degraded-but-valid result; Process never
// returns an error and never yields zero chunks.
type Processor struct {
	vectorizer *embedding.Vectorizer
	chunkSize  int
	maxChunks  int
}

func New(vectorizer *embedding.Vectorizer, chunkSize, maxChunks int) *Processor {
	return &Processor{vectorizer: vectorizer, chunkSize: chunkSize, maxChunks: maxChunks}
}

func (p *Processor) Process(ctx context.Context, name string, data []byte) Result {
	kind := DetectKind(name)

	content, err := extract(name, kind, data)
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("Error extracting document text")
		return p.errorResult(ctx, name, kind)
	}

	originalText, textToProcess := assembleText(content)
	preview := buildPreview(content, originalText)

	var chunks []models.Chunk
	for _, piece := range chunker.Split(textToProcess, p.maxChunks, p.chunkSize) {
		vec, err := p.vectorizer.Embed(ctx, piece)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Error vectorizing chunk, skipping")
			continue
		}
		chunks = append(chunks, models.Chunk{Text: piece, Vector: vec})
	}

	if len(chunks) == 0 {
		chunks = []models.Chunk{p.fallbackChunk(ctx, name, textToProcess)}
	}

	log.Info().Str("file", name).Int("chunks", len(chunks)).Msg("Processed document")

	return Result{
		Kind:         kind,
		OriginalText: originalText,
		Preview:      preview,
		PreviewHTML:  renderPreviewHTML(preview),
		Chunks:       chunks,
	}
}

// fallbackChunk synthesizes the single chunk returned when chunking or
// vectorization produced nothing usable. A nil vector is acceptable here:
// the relevance engine scores it as 0.
func (p *Processor) fallbackChunk(ctx context.Context, name, textToProcess string) models.Chunk {
	text := strings.TrimSpace(textToProcess)
	if text != "" {
		runes := []rune(text)
		if len(runes) > p.chunkSize {
			runes = runes[:p.chunkSize]
		}
		text = string(runes)
	} else {
		text = fmt.Sprintf(models.FallbackChunkTemplate, name)
	}

	vec, err := p.vectorizer.Embed(ctx, text)
	if err != nil {
		log.Warn().Err(err).Str("file", name).Msg("Error vectorizing fallback chunk")
	}
	return models.Chunk{Text: text, Vector: vec}
}

// errorResult degrades a hard extraction failure to a single chunk carrying
// the literal error string, so an upload always yields a usable chunk set.
func (p *Processor) errorResult(ctx context.Context, name string, kind Kind) Result {
	text := fmt.Sprintf("Error processing file %s", name)
	vec, err := p.vectorizer.Embed(ctx, text)
	if err != nil {
		log.Warn().Err(err).Str("file", name).Msg("Error vectorizing error placeholder")
	}
	return Result{
		Kind:         kind,
		OriginalText: text,
		Preview:      text,
		PreviewHTML:  renderPreviewHTML(text),
		Chunks:       []models.Chunk{{Text: text, Vector: vec}},
	}
}

// assembleText returns the display text and the text fed to the chunker.
// Row kinds join cells with commas and rows with newlines; the header row is
// called out separately so the model sees the column context.
func assembleText(content Content) (originalText, textToProcess string) {
	if content.Rows == nil {
		return content.Text, content.Text
	}

	joined := make([]string, len(content.Rows))
	for i, row := range content.Rows {
		joined[i] = strings.Join(row, ", ")
	}
	originalText = strings.Join(joined, "\n")

	if len(content.Rows) == 0 {
		return originalText, ""
	}
	textToProcess = fmt.Sprintf("Headers: %s\n\nData:\n%s", joined[0], strings.Join(joined[1:], "\n"))
	return originalText, textToProcess
}

// buildPreview renders row kinds as a markdown table capped at 20 data rows
// and everything else as a truncated text excerpt.
func buildPreview(content Content, originalText string) string {
	if content.Rows == nil || len(content.Rows) == 0 {
		runes := []rune(originalText)
		if len(runes) > previewChars {
			return string(runes[:previewChars]) + "..."
		}
		return originalText
	}

	var b strings.Builder
	headers := content.Rows[0]
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	seps := make([]string, len(headers))
	for i := range seps {
		seps[i] = "---"
	}
	b.WriteString("| " + strings.Join(seps, " | ") + " |\n")

	dataRows := content.Rows[1:]
	if len(dataRows) > 20 {
		dataRows = dataRows[:20]
	}
	for _, row := range dataRows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return b.String()
}

func renderPreviewHTML(markdown string) string {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		log.Warn().Err(err).Msg("Error rendering preview markdown")
		return ""
	}
	return strings.TrimSpace(buf.String())
}
