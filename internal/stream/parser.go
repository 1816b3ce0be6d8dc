package stream

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"docuchat/internal/models"
)

// chunkPayload is the JSON carried by one SSE data line. Delta carries
// incremental fragments; Message carries full content on providers that
// stream whole messages.
type chunkPayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Parser reconstructs content fragments from an SSE byte stream fed in
// arbitrary slices. Bytes are buffered until a newline completes a line, so
// reads split inside a multi-byte character or inside a "data: " line never
// corrupt output. A line that fails JSON parsing is logged and skipped; the
// stream continues.
type Parser struct {
	buf bytes.Buffer
}

// Feed consumes the next raw read and returns the content fragments
// completed by it, in order.
func (p *Parser) Feed(data []byte) []string {
	p.buf.Write(data)

	var fragments []string
	for {
		raw := p.buf.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			break
		}
		line := string(raw[:idx])
		p.buf.Next(idx + 1)

		if fragment, ok := parseLine(line); ok {
			fragments = append(fragments, fragment)
		}
	}
	return fragments
}

// Flush drains a trailing unterminated line at end of stream.
func (p *Parser) Flush() []string {
	if p.buf.Len() == 0 {
		return nil
	}
	line := p.buf.String()
	p.buf.Reset()

	if fragment, ok := parseLine(line); ok {
		return []string{fragment}
	}
	return nil
}

func parseLine(line string) (string, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, models.SSEDataPrefix) {
		return "", false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, models.SSEDataPrefix))
	if payload == "" || payload == models.SSEDoneMessage {
		return "", false
	}

	var chunk chunkPayload
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		log.Warn().Err(err).Str("line", payload).Msg("Error parsing SSE data line, skipping")
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", false
	}

	content := chunk.Choices[0].Delta.Content
	if content == "" {
		content = chunk.Choices[0].Message.Content
	}
	if content == "" {
		return "", false
	}
	return content, true
}
