package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"docuchat/internal/config"
	"docuchat/internal/models"
)

// Client talks to the optional remote embedding/document backend.
// Availability is probed once at session start with a bounded timeout;
// when the backend is down, every operation degrades to the local
// implementations instead of failing the session.
type Client struct {
	baseURL      string
	probeTimeout time.Duration
	httpClient   *http.Client
	available    atomic.Bool
}

// ProcessResponse mirrors the backend's /process payload.
type ProcessResponse struct {
	OriginalContent string         `json:"originalContent"`
	PreviewContent  string         `json:"previewContent"`
	Chunks          []models.Chunk `json:"chunks"`
	FileName        string         `json:"fileName"`
	FileType        string         `json:"fileType"`
}

type vectorizeResponse struct {
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

type findRelevantRequest struct {
	Query     string         `json:"query"`
	Chunks    []models.Chunk `json:"chunks"`
	Threshold float64        `json:"threshold"`
	MaxChunks int            `json:"maxChunks"`
}

type findRelevantResponse struct {
	Query          string         `json:"query"`
	RelevantChunks []models.Chunk `json:"relevantChunks"`
	Count          int            `json:"count"`
}

// NewClient returns nil when no backend is configured.
func NewClient(cfg config.BackendConfig) *Client {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		probeTimeout: cfg.ProbeTimeout,
		httpClient:   &http.Client{},
	}
}

// Probe checks GET /health with a short bounded timeout so an unreachable
// backend fails fast instead of hanging startup.
func (c *Client) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		c.available.Store(false)
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Backend health check failed, using local fallbacks")
		c.available.Store(false)
		return false
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK
	if !ok {
		log.Warn().Int("status", resp.StatusCode).Msg("Backend unhealthy, using local fallbacks")
	}
	c.available.Store(ok)
	return ok
}

func (c *Client) Available() bool {
	return c != nil && c.available.Load()
}

// Process uploads the file for remote extraction, chunking, and
// vectorization.
func (c *Client) Process(ctx context.Context, fileName string, fileType string, data []byte) (*ProcessResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.WriteField("fileName", fileName); err != nil {
		return nil, err
	}
	if err := w.WriteField("fileType", fileType); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out ProcessResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("backend process: %w", err)
	}
	return &out, nil
}

// EmbedQuery satisfies the vectorizer's Provider interface, so the backend
// can stand in as the embedding provider when available.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/vectorize", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out vectorizeResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("backend vectorize: %w", err)
	}
	return out.Vector, nil
}

// FindRelevant asks the backend to score the pool against the query.
func (c *Client) FindRelevant(ctx context.Context, query string, pool []models.Chunk, threshold float64, maxResults int) ([]models.Chunk, error) {
	payload, err := json.Marshal(findRelevantRequest{
		Query:     query,
		Chunks:    pool,
		Threshold: threshold,
		MaxChunks: maxResults,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/find_relevant", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out findRelevantResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("backend find_relevant: %w", err)
	}
	return out.RelevantChunks, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
