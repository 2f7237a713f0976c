// Package llm defines the host-facing contract for model adapters: map a
// generic message list into a vendor's chat API, stream the result back as
// chunks, and classify vendor failures into a fixed invoke-error taxonomy.
package llm

import (
	"context"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind tags one part of a multimodal message.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentImage    ContentKind = "image"
	ContentDocument ContentKind = "document"
)

// ContentPart is one part of a multimodal message. Text parts carry Text;
// media parts carry either a URL or raw Data plus its MIME type.
type ContentPart struct {
	Kind     ContentKind
	Text     string
	URL      string
	Data     []byte
	MimeType string
}

// Message is one generic chat message.
type Message struct {
	Role Role

	// Content is the plain-text payload for single-part messages.
	Content string

	// Parts holds multimodal content; when non-empty it takes precedence
	// over Content.
	Parts []ContentPart

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string
}

// Usage is the token accounting reported by the vendor.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ResultChunk is one streamed increment of a model response.
type ResultChunk struct {
	Index        int
	Delta        Message
	Usage        *Usage
	FinishReason string
}

// ChunkStream is a lazy, finite, forward-only sequence of result chunks,
// produced in vendor arrival order.
type ChunkStream struct {
	pull    func() (*ResultChunk, error)
	current *ResultChunk
	err     error
	done    bool
}

// NewChunkStream wraps a pull function. pull returns (nil, nil) when the
// stream is exhausted.
func NewChunkStream(pull func() (*ResultChunk, error)) *ChunkStream {
	return &ChunkStream{pull: pull}
}

// ChunkStreamOf returns a stream over already-materialized chunks.
func ChunkStreamOf(chunks ...*ResultChunk) *ChunkStream {
	i := 0
	return NewChunkStream(func() (*ResultChunk, error) {
		if i >= len(chunks) {
			return nil, nil
		}
		c := chunks[i]
		i++
		return c, nil
	})
}

// Next advances to the next chunk.
func (s *ChunkStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	c, err := s.pull()
	if err != nil {
		s.err = err
		s.done = true
		return false
	}
	if c == nil {
		s.done = true
		return false
	}
	s.current = c
	return true
}

// Chunk returns the chunk positioned by the last successful Next.
func (s *ChunkStream) Chunk() *ResultChunk { return s.current }

// Err returns the error that terminated the stream, if any.
func (s *ChunkStream) Err() error { return s.err }

// InvokeRequest is one model invocation.
type InvokeRequest struct {
	Model      string
	Messages   []Message
	Parameters map[string]any
	Stop       []string

	// Stream requests incremental delivery. Adapters that cannot stream a
	// particular call may deliver a single terminal chunk.
	Stream bool
}

// Result is a fully materialized (non-streamed) model response.
type Result struct {
	Model        string
	Message      Message
	Usage        Usage
	FinishReason string
}

// Adapter is one vendor's model integration.
type Adapter interface {
	// Name identifies the provider (e.g., "openrouter").
	Name() string

	// Invoke runs a chat completion. Streaming requests return chunks as
	// they arrive; non-streaming requests return a single chunk carrying
	// the whole message and usage.
	Invoke(ctx context.Context, req InvokeRequest) (*ChunkStream, error)

	// ValidateCredentials performs a minimal live call to verify the
	// configured credentials.
	ValidateCredentials(ctx context.Context, creds datasource.Credentials, model string) error
}
