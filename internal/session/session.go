package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"docuchat/internal/helper"
	"docuchat/internal/models"
)

// Session holds the ordered message log, the append-only chunk pool, and the
// streaming flag, all cleared together on Reset. A single mutex guards every
// mutation; callers get copies, never internal slices.
type Session struct {
	mu          sync.Mutex
	messages    []models.Message
	pool        []models.Chunk
	streamingID string
}

func New() *Session {
	return &Session{}
}

// SubmitUserMessage appends a user message. It is a no-op while a stream is
// active or when the text trims to empty. Every user message after the first
// starts a new section.
func (s *Session) SubmitUserMessage(text string) (models.Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamingID != "" {
		log.Debug().Msg("submit ignored while a stream is active")
		return models.Message{}, false
	}

	msg := models.Message{
		ID:         "user-" + helper.NewID(),
		Role:       models.RoleUser,
		Text:       text,
		Completed:  true,
		NewSection: len(s.messages) > 0,
	}
	s.messages = append(s.messages, msg)
	return msg, true
}

// BeginStream creates the empty assistant message a stream will fill and
// marks the session streaming. Fails when a stream is already active.
func (s *Session) BeginStream() (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamingID != "" {
		return models.Message{}, false
	}

	msg := models.Message{
		ID:   "assistant-" + helper.NewID(),
		Role: models.RoleAssistant,
	}
	s.messages = append(s.messages, msg)
	s.streamingID = msg.ID
	return msg, true
}

// AppendAssistantDelta appends a streamed fragment to the target message.
// Deltas for a message that is no longer the active stream target (the
// session was reset or the stream superseded) are discarded.
func (s *Session) AppendAssistantDelta(messageID, delta string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if messageID != s.streamingID {
		return false
	}
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Text += delta
			return true
		}
	}
	return false
}

// CompleteAssistantMessage freezes the target message with the exact
// accumulated text and leaves streaming state.
func (s *Session) CompleteAssistantMessage(messageID, fullText string) {
	s.finishStream(messageID, fullText)
}

// FailAssistantMessage freezes the target message with a user-visible error
// string so the UI always leaves streaming state, even on failure.
func (s *Session) FailAssistantMessage(messageID string, err error) {
	s.finishStream(messageID, fmt.Sprintf(models.StreamErrorTemplate, err))
}

func (s *Session) finishStream(messageID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if messageID != s.streamingID {
		return
	}
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Text = text
			s.messages[i].Completed = true
			break
		}
	}
	s.streamingID = ""
}

// IsStreaming reports whether a chat stream is in flight.
func (s *Session) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamingID != ""
}

// AddFileMessage appends a file message in its processing state and returns
// it. The attachment is updated in place once processing completes.
func (s *Session) AddFileMessage(att models.FileAttachment) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := models.Message{
		ID:        "file-" + helper.NewID(),
		Role:      models.RoleFile,
		Text:      "Processing file...",
		Completed: false,
		File:      &att,
	}
	s.messages = append(s.messages, msg)
	return msg
}

// UpdateFileMessage replaces the attachment on an existing file message and
// marks it completed. Returns false when the message no longer exists
// (session was reset while processing).
func (s *Session) UpdateFileMessage(messageID, text string, att models.FileAttachment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Text = text
			s.messages[i].Completed = true
			s.messages[i].File = &att
			return true
		}
	}
	return false
}

// AddChunks appends new chunks to the pool, deduplicating against the pool
// state at append time by the trimmed 100-character text prefix. Returns how
// many chunks were actually added.
func (s *Session) AddChunks(chunks []models.Chunk) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]struct{}, len(s.pool))
	for _, c := range s.pool {
		existing[dedupKey(c.Text)] = struct{}{}
	}

	added := 0
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		key := dedupKey(c.Text)
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{}
		s.pool = append(s.pool, c)
		added++
	}
	return added
}

// Chunks returns a copy of the pool in append order.
func (s *Session) Chunks() []models.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Chunk(nil), s.pool...)
}

// Messages returns a copy of the message log.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

// Sections projects the message log into layout sections.
func (s *Session) Sections() []models.Section {
	return BuildSections(s.Messages())
}

// Reset clears the message log, the chunk pool, and any in-flight stream
// state. Late deltas for the abandoned stream no longer match a target id
// and are discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.pool = nil
	s.streamingID = ""
}

// BuildSections is a pure projection recomputed wholesale from the message
// log on every change. A new section starts at every message flagged
// NewSection.
func BuildSections(messages []models.Message) []models.Section {
	var sections []models.Section
	for _, msg := range messages {
		if len(sections) == 0 || msg.NewSection {
			sections = append(sections, models.Section{
				ID:    fmt.Sprintf("section-%d", len(sections)),
				Index: len(sections),
			})
		}
		last := &sections[len(sections)-1]
		last.Messages = append(last.Messages, msg)
	}
	return sections
}

func dedupKey(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > models.DedupPrefixLen {
		runes = runes[:models.DedupPrefixLen]
	}
	return string(runes)
}
