package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"docuchat/internal/config"
	"docuchat/internal/models"
)

// ErrStreamTransport covers network failures, non-success statuses, and
// read errors during chat streaming. It surfaces as a visible chat message,
// never a crash.
var ErrStreamTransport = errors.New("chat stream transport error")

// State is the stream lifecycle. Errored is absorbing, reachable from
// Requesting and Streaming.
type State int32

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Event is one update from an active stream. Exactly one terminal event is
// sent (Done or Err set) and the channel is closed after it.
type Event struct {
	MessageID string
	Delta     string
	Done      bool
	Err       error
	FullText  string
}

// Stream is a single in-flight chat request. Events carries deltas to the
// one consumer; events may be batched for rendering downstream, but every
// fragment is accounted for in FullText.
type Stream struct {
	Events <-chan Event

	state atomic.Int32
}

func (s *Stream) State() State {
	return State(s.state.Load())
}

func (s *Stream) setState(st State) {
	s.state.Store(int32(st))
}

// Client issues chat completion requests against an OpenAI-compatible
// endpoint and parses the SSE response incrementally.
type Client struct {
	cfg        config.ChatConfig
	httpClient *http.Client
}

func NewClient(cfg config.ChatConfig) *Client {
	// No timeout on the client: streams are open-ended and the request is
	// bounded by ctx.
	return &Client{cfg: cfg, httpClient: &http.Client{}}
}

// BuildPrompt assembles the outbound user turn: the joined relevant-chunk
// texts separated from the question by the fixed delimiter banner, or the
// bare question when no context exists.
func BuildPrompt(question string, contextChunks []models.Chunk) string {
	if len(contextChunks) == 0 {
		return question
	}
	texts := make([]string, len(contextChunks))
	for i, c := range contextChunks {
		texts[i] = c.Text
	}
	return fmt.Sprintf(models.ContextPromptTemplate, strings.Join(texts, "\n\n"), question)
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Start begins a streaming chat request for the given target message. The
// returned stream's Events channel yields deltas and exactly one terminal
// event.
func (c *Client) Start(ctx context.Context, messageID, prompt string) *Stream {
	events := make(chan Event)
	s := &Stream{Events: events}
	s.setState(StateRequesting)

	go c.run(ctx, s, events, messageID, prompt)
	return s
}

func (c *Client) run(ctx context.Context, s *Stream, events chan<- Event, messageID, prompt string) {
	defer close(events)

	var accumulated strings.Builder

	fail := func(err error) {
		s.setState(StateErrored)
		log.Error().Err(err).Str("message_id", messageID).Msg("Chat stream failed")
		events <- Event{MessageID: messageID, Err: err, FullText: accumulated.String()}
	}

	resp, err := c.send(ctx, prompt, true)
	if err != nil {
		fail(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		fail(fmt.Errorf("%w: status %d: %s", ErrStreamTransport, resp.StatusCode, strings.TrimSpace(string(body))))
		return
	}

	s.setState(StateStreaming)

	var parser Parser
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, fragment := range parser.Feed(buf[:n]) {
				accumulated.WriteString(fragment)
				events <- Event{MessageID: messageID, Delta: fragment}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			fail(fmt.Errorf("%w: %v", ErrStreamTransport, readErr))
			return
		}
	}

	for _, fragment := range parser.Flush() {
		accumulated.WriteString(fragment)
		events <- Event{MessageID: messageID, Delta: fragment}
	}

	s.setState(StateCompleted)
	events <- Event{MessageID: messageID, Done: true, FullText: accumulated.String()}
}

// Complete issues a non-streaming request and returns the full message
// content.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.send(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d: %s", ErrStreamTransport, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chunkPayload
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrStreamTransport, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty completion response", ErrStreamTransport)
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) send(ctx context.Context, prompt string, streaming bool) (*http.Response, error) {
	payload := chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      streaming,
		Temperature: c.cfg.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrStreamTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Key != "" {
		req.Header.Set("Authorization", c.cfg.Key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamTransport, err)
	}
	return resp, nil
}
