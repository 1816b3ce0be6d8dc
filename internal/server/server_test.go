package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/config"
	"docuchat/internal/embedding"
	"docuchat/internal/models"
	"docuchat/internal/processor"
	"docuchat/internal/relevance"
	"docuchat/internal/session"
	"docuchat/internal/stream"
)

type fakeProvider struct{}

func (fakeProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

type fixture struct {
	server  *Server
	session *session.Session
	router  http.Handler
}

func newFixture(t *testing.T, chatURL string) *fixture {
	t.Helper()

	cfg, err := config.LoadConfig("/nonexistent/config.yaml")
	require.NoError(t, err)
	cfg.Chat.URL = chatURL

	vec := embedding.NewVectorizerWithProvider(fakeProvider{})
	sess := session.New()
	srv := New(cfg, sess,
		processor.New(vec, cfg.RAG.ChunkSize, cfg.RAG.MaxChunks),
		relevance.NewEngine(vec, nil),
		stream.NewClient(cfg.Chat),
		nil,
	)
	return &fixture{server: srv, session: sess, router: srv.Router()}
}

func multipartBody(t *testing.T, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, "")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, false, resp["backendAvailable"])
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	f := newFixture(t, "")
	body, contentType := multipartBody(t, "malware.exe", "data")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Empty(t, f.session.Messages())
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	f := newFixture(t, "")
	f.server.cfg.Server.MaxUploadBytes = 16

	body, contentType := multipartBody(t, "big.txt", strings.Repeat("x", 64))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, f.session.Messages())
}

func TestUploadProcessesFileAsync(t *testing.T) {
	f := newFixture(t, "")
	body, contentType := multipartBody(t, "notes.txt", "useful document text")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The response carries the processing-state file message.
	msgs := f.session.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleFile, msgs[0].Role)
	assert.False(t, msgs[0].Completed)

	require.Eventually(t, func() bool {
		return len(f.session.Chunks()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		m := f.session.Messages()[0]
		return m.Completed && m.File != nil && m.File.Processed
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "useful document text", f.session.Chunks()[0].Text)
}

func TestUploadZeroByteFileYieldsPlaceholderChunk(t *testing.T) {
	f := newFixture(t, "")
	body, contentType := multipartBody(t, "empty.txt", "")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		return len(f.session.Chunks()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Content summary for empty.txt", f.session.Chunks()[0].Text)
}

func TestChatStreamsAndRecordsMessages(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n")
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer provider.Close()

	f := newFixture(t, provider.URL)

	payload, _ := json.Marshal(map[string]string{"message": "say hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `data: {"content":"Hel"}`)
	assert.Contains(t, out, `data: {"content":"lo"}`)
	assert.Contains(t, out, "data: [DONE]")

	msgs := f.session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello", msgs[1].Text)
	assert.True(t, msgs[1].Completed)
	assert.False(t, f.session.IsStreaming())
}

func TestChatProviderFailureBecomesVisibleMessage(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer provider.Close()

	f := newFixture(t, provider.URL)

	payload, _ := json.Marshal(map[string]string{"message": "hi"})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(payload)))

	msgs := f.session.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Completed)
	assert.Contains(t, msgs[1].Text, "Sorry, I encountered an error")
	assert.False(t, f.session.IsStreaming())
}

func TestChatRejectedWhileStreaming(t *testing.T) {
	release := make(chan struct{})
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"...\"}}]}\n")
		w.(http.Flusher).Flush()
		<-release
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer provider.Close()

	f := newFixture(t, provider.URL)

	done := make(chan struct{})
	go func() {
		defer close(done)
		payload, _ := json.Marshal(map[string]string{"message": "first"})
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(payload)))
	}()

	require.Eventually(t, f.session.IsStreaming, 2*time.Second, 10*time.Millisecond)
	logLen := len(f.session.Messages())

	payload, _ := json.Marshal(map[string]string{"message": "second"})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(payload)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, f.session.Messages(), logLen)

	close(release)
	<-done
}

func TestMessagesEndpointReturnsSections(t *testing.T) {
	f := newFixture(t, "")
	f.session.SubmitUserMessage("one")
	f.session.SubmitUserMessage("two")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages    []models.Message `json:"messages"`
		Sections    []models.Section `json:"sections"`
		IsStreaming bool             `json:"isStreaming"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Messages, 2)
	assert.Len(t, resp.Sections, 2)
	assert.False(t, resp.IsStreaming)
}

func TestResetClearsSession(t *testing.T) {
	f := newFixture(t, "")
	f.session.SubmitUserMessage("hello")
	f.session.AddChunks([]models.Chunk{{Text: "chunk", Vector: []float32{1}}})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reset", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.session.Messages())
	assert.Empty(t, f.session.Chunks())
}
