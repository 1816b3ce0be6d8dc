package models

const (
	// DefaultChunkSize is the number of characters per chunk.
	DefaultChunkSize = 500
	// DefaultMaxChunks caps the chunks produced from a single document.
	DefaultMaxChunks = 50

	// DefaultSimilarityThreshold keeps only chunks scoring at or above it.
	DefaultSimilarityThreshold = 0.7
	// DefaultMaxContextChunks caps the chunks injected as chat context.
	DefaultMaxContextChunks = 5

	// DedupPrefixLen is the normalized-text prefix used as the approximate
	// identity key when deduplicating pool chunks. A heuristic, kept as is:
	// strengthening it changes observable chunk counts.
	DedupPrefixLen = 100

	// MaxUploadBytes is the synchronous upload rejection limit.
	MaxUploadBytes = 100 << 20

	DefaultMaxTokens   = 1500
	DefaultTemperature = 0.7
)

const (
	SSEDataPrefix  = "data: "
	SSEDoneMessage = "[DONE]"
)

var (
	// ContextPromptTemplate wraps retrieved chunk text and the user
	// question into a single user turn. Args: joined chunk texts, question.
	ContextPromptTemplate = "Context from uploaded documents:\n---\n%s\n---\n\nUser Question: %s"

	// FallbackChunkTemplate stands in when a file yields zero usable
	// chunks. Arg: file name.
	FallbackChunkTemplate = "Content summary for %s"

	// UnknownFileTemplate stands in for content of unsupported file kinds
	// so the pipeline never receives empty input silently. Args: name, type.
	UnknownFileTemplate = "File: %s, Type: %s"

	// StreamErrorTemplate is the user-visible text written to the target
	// message when a chat stream fails. Arg: error detail.
	StreamErrorTemplate = "Sorry, I encountered an error: %s"
)
