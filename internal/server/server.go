package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"docuchat/internal/backend"
	"docuchat/internal/config"
	"docuchat/internal/models"
	"docuchat/internal/processor"
	"docuchat/internal/relevance"
	"docuchat/internal/session"
	"docuchat/internal/stream"
)

// Server exposes the chat session over HTTP: document upload, streaming
// chat relay, message log, reset, and health.
type Server struct {
	cfg       *config.Config
	session   *session.Session
	processor *processor.Processor
	engine    *relevance.Engine
	chat      *stream.Client
	backend   *backend.Client
}

func New(cfg *config.Config, sess *session.Session, proc *processor.Processor, engine *relevance.Engine, chat *stream.Client, be *backend.Client) *Server {
	return &Server{
		cfg:       cfg,
		session:   sess,
		processor: proc,
		engine:    engine,
		chat:      chat,
		backend:   be,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/messages", s.handleMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/reset", s.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/api/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"backendAvailable": s.backend.Available(),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, _ *http.Request) {
	messages := s.session.Messages()
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":    messages,
		"sections":    session.BuildSections(messages),
		"isStreaming": s.session.IsStreaming(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.session.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes+1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Please upload a file smaller than 100MB")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file data")
		return
	}
	defer file.Close()

	if header.Size > s.cfg.Server.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "Please upload a file smaller than 100MB")
		return
	}
	if !processor.Accepted(header.Filename) {
		writeError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("Unsupported file type: %s", header.Filename))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error reading uploaded file")
		return
	}

	kind := processor.DetectKind(header.Filename)
	msg := s.session.AddFileMessage(models.FileAttachment{
		Name: header.Filename,
		Kind: string(kind),
	})

	// Processing and embedding happen off-request. A later upload may
	// finish before an earlier one; the pool dedups at append time.
	go s.processUpload(context.Background(), msg.ID, header.Filename, string(kind), data)

	writeJSON(w, http.StatusAccepted, map[string]any{"message": msg})
}

func (s *Server) processUpload(ctx context.Context, messageID, fileName, fileType string, data []byte) {
	var (
		chunks  []models.Chunk
		preview string
		html    string
	)

	if s.backend.Available() {
		resp, err := s.backend.Process(ctx, fileName, fileType, data)
		if err == nil && len(resp.Chunks) > 0 {
			chunks = resp.Chunks
			preview = resp.PreviewContent
		} else if err != nil {
			log.Warn().Err(err).Str("file", fileName).Msg("Backend processing failed, processing locally")
		}
	}

	if len(chunks) == 0 {
		result := s.processor.Process(ctx, fileName, data)
		chunks = result.Chunks
		preview = result.Preview
		html = result.PreviewHTML
	}

	added := s.session.AddChunks(chunks)
	log.Info().Str("file", fileName).Int("chunks", len(chunks)).Int("added", added).Msg("File chunks added to context")

	updated := s.session.UpdateFileMessage(messageID, "File content processed", models.FileAttachment{
		Name:        fileName,
		Kind:        fileType,
		RawPreview:  preview,
		PreviewHTML: html,
		Processed:   true,
		ChunkCount:  len(chunks),
	})
	if !updated {
		log.Debug().Str("file", fileName).Msg("File message gone before processing finished, result dropped")
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat runs one chat turn and relays the assistant deltas to the
// browser as an SSE response.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userMsg, ok := s.session.SubmitUserMessage(req.Message)
	if !ok {
		writeError(w, http.StatusConflict, "A response is already streaming")
		return
	}

	relevant := s.engine.FindRelevant(r.Context(), userMsg.Text, s.session.Chunks(),
		s.cfg.RAG.SimilarityThreshold, s.cfg.RAG.MaxContextChunks)
	prompt := stream.BuildPrompt(userMsg.Text, relevant)

	assistantMsg, ok := s.session.BeginStream()
	if !ok {
		writeError(w, http.StatusConflict, "A response is already streaming")
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	st := s.chat.Start(r.Context(), assistantMsg.ID, prompt)
	for ev := range st.Events {
		switch {
		case ev.Err != nil:
			s.session.FailAssistantMessage(ev.MessageID, ev.Err)
			writeSSE(w, map[string]string{"error": ev.Err.Error()})
		case ev.Done:
			s.session.CompleteAssistantMessage(ev.MessageID, ev.FullText)
			fmt.Fprintf(w, "%s%s\n\n", models.SSEDataPrefix, models.SSEDoneMessage)
		default:
			s.session.AppendAssistantDelta(ev.MessageID, ev.Delta)
			writeSSE(w, map[string]string{"content": ev.Delta})
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s%s\n\n", models.SSEDataPrefix, data)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("Error encoding response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
