package models

// Chunk is a text fragment paired with its embedding vector. All chunks
// compared for similarity must share the same vector dimension.
type Chunk struct {
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFile      Role = "file"
)

// Message is one entry in the session log. Assistant messages start empty
// and are mutated in place as stream deltas arrive, then frozen with
// Completed=true when the stream ends or errors.
type Message struct {
	ID         string          `json:"id"`
	Role       Role            `json:"role"`
	Text       string          `json:"text"`
	Completed  bool            `json:"completed"`
	NewSection bool            `json:"newSection"`
	File       *FileAttachment `json:"file,omitempty"`
}

// FileAttachment describes an uploaded file referenced by a file message.
// Processed flips to true once the document processor has populated the
// session chunk pool; until then the UI renders a processing state.
type FileAttachment struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	RawPreview  string `json:"rawPreview,omitempty"`
	PreviewHTML string `json:"previewHTML,omitempty"`
	Processed   bool   `json:"processed"`
	ChunkCount  int    `json:"chunkCount"`
}

// Section is a contiguous run of messages grouped for layout. Sections are
// recomputed wholesale from the message log on every change, never mutated
// independently.
type Section struct {
	ID       string    `json:"id"`
	Index    int       `json:"index"`
	Messages []Message `json:"messages"`
}
