// Package output provides JSONL output for CLI results.
//
// Output is structured as typed record envelopes containing browse
// entries, document pages, tool messages, model chunks, errors, and run
// summaries. Each line is a self-contained JSON object that can be
// parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: cirrus.<type>.v<version>
const (
	// TypeEntry identifies browse listing records.
	TypeEntry = "cirrus.entry.v1"

	// TypePage identifies document page records.
	TypePage = "cirrus.page.v1"

	// TypeVariable identifies document content variable records.
	TypeVariable = "cirrus.variable.v1"

	// TypeMessage identifies tool invocation message records.
	TypeMessage = "cirrus.message.v1"

	// TypeChunk identifies model result chunk records.
	TypeChunk = "cirrus.chunk.v1"

	// TypeError identifies error records.
	TypeError = "cirrus.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "cirrus.summary.v1"
)

// Record is the envelope for all JSONL output. The type field determines
// how to interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "cirrus.entry.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this invocation.
	JobID string `json:"job_id"`

	// Connector identifies the connector (e.g., "s3", "confluence").
	Connector string `json:"connector"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// EntryRecord is the data payload for one browse entry.
type EntryRecord struct {
	// Bucket is the container the entry was listed from.
	Bucket string `json:"bucket,omitempty"`

	// ID is the connector-scoped identifier, valid for download.
	ID string `json:"id"`

	// Name is the display name relative to the browsed prefix.
	Name string `json:"name"`

	// Size is the byte size; zero for folders.
	Size int64 `json:"size"`

	// EntryType is "file" or "folder".
	EntryType string `json:"entry_type"`

	// Metadata carries vendor-specific extras.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewEntryRecord maps a browse entry into its record payload.
func NewEntryRecord(bucket string, f *datasource.File) *EntryRecord {
	return &EntryRecord{
		Bucket:    bucket,
		ID:        f.ID,
		Name:      f.Name,
		Size:      f.Size,
		EntryType: string(f.Type),
		Metadata:  f.Metadata,
	}
}

// PageRecord is the data payload for one document page.
type PageRecord struct {
	WorkspaceID   string         `json:"workspace_id,omitempty"`
	WorkspaceName string         `json:"workspace_name,omitempty"`
	PageID        string         `json:"page_id"`
	PageName      string         `json:"page_name"`
	PageType      string         `json:"page_type,omitempty"`
	URL           string         `json:"url,omitempty"`
	LastEdited    string         `json:"last_edited,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewPageRecord maps a document page into its record payload.
func NewPageRecord(info *datasource.DocumentInfo, p *datasource.Page) *PageRecord {
	return &PageRecord{
		WorkspaceID:   info.WorkspaceID,
		WorkspaceName: info.WorkspaceName,
		PageID:        p.PageID,
		PageName:      p.PageName,
		PageType:      p.Type,
		URL:           p.URL,
		LastEdited:    p.LastEditedTime,
		Metadata:      p.Metadata,
	}
}

// VariableRecord is the data payload for one content variable.
type VariableRecord struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MessageRecord is the data payload for one tool message.
type MessageRecord struct {
	// MessageType is "text", "json", "variable", or "log".
	MessageType string `json:"message_type"`

	Text  string         `json:"text,omitempty"`
	JSON  map[string]any `json:"json,omitempty"`
	Name  string         `json:"name,omitempty"`
	Value string         `json:"value,omitempty"`
}

// ChunkRecord is the data payload for one model result chunk.
type ChunkRecord struct {
	Index        int          `json:"index"`
	Content      string       `json:"content,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
	Usage        *UsageRecord `json:"usage,omitempty"`
}

// UsageRecord reports token accounting for a completed invocation.
type UsageRecord struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorRecord is the data payload for errors. Errors are emitted as
// records rather than failing the stream, so downstream consumers never
// have to scrape stderr.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Key is the entry or page the error relates to, if applicable.
	Key string `json:"key,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAuthExpired   = "AUTH_EXPIRED"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeConfiguration = "CONFIGURATION"
	ErrCodeUnsupported   = "UNSUPPORTED_STATE"
	ErrCodeIntegrity     = "INTEGRITY"
	ErrCodeUpstream      = "UPSTREAM"
	ErrCodeInternal      = "INTERNAL"
)

// ErrorCode maps a connector error to its record code.
func ErrorCode(err error) string {
	switch {
	case datasource.IsNotFound(err):
		return ErrCodeNotFound
	case datasource.IsAuthExpired(err) || datasource.IsInvalidCredentials(err):
		return ErrCodeAuthExpired
	case datasource.IsRateLimited(err):
		return ErrCodeRateLimited
	case datasource.IsConfiguration(err):
		return ErrCodeConfiguration
	case errors.Is(err, datasource.ErrUnsupportedState):
		return ErrCodeUnsupported
	case datasource.IsIntegrity(err):
		return ErrCodeIntegrity
	case errors.Is(err, datasource.ErrUpstream):
		return ErrCodeUpstream
	default:
		return ErrCodeInternal
	}
}

// NewErrorRecord maps an error into its record payload.
func NewErrorRecord(key string, err error) *ErrorRecord {
	return &ErrorRecord{Code: ErrorCode(err), Message: err.Error(), Key: key}
}

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	// Entries is the number of data records emitted.
	Entries int64 `json:"entries"`

	// Bytes is the cumulative size of emitted file entries.
	Bytes int64 `json:"bytes,omitempty"`

	// Errors is the count of error records emitted.
	Errors int64 `json:"errors"`

	// Duration is the run duration in nanoseconds.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
