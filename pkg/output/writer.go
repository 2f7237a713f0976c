package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records for CLI results.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. Each Write* method emits a complete record as a single
// line of JSON followed by a newline.
type Writer interface {
	// WriteEntry emits a browse entry record.
	WriteEntry(ctx context.Context, entry *EntryRecord) error

	// WritePage emits a document page record.
	WritePage(ctx context.Context, page *PageRecord) error

	// WriteVariable emits a content variable record.
	WriteVariable(ctx context.Context, v *VariableRecord) error

	// WriteMessage emits a tool message record.
	WriteMessage(ctx context.Context, msg *MessageRecord) error

	// WriteChunk emits a model chunk record.
	WriteChunk(ctx context.Context, chunk *ChunkRecord) error

	// WriteError emits an error record.
	WriteError(ctx context.Context, err *ErrorRecord) error

	// WriteSummary emits a summary record.
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using a
// mutex to ensure atomic line writes (no interleaved output).
type JSONLWriter struct {
	w         io.Writer
	jobID     string
	connector string
	mu        sync.Mutex

	closed bool
}

// NewJSONLWriter creates a new JSONL writer.
//
// Parameters:
//   - w: The underlying writer (stdout, file, etc.)
//   - jobID: Correlation ID for this invocation
//   - connector: Connector identifier (e.g., "s3")
func NewJSONLWriter(w io.Writer, jobID, connector string) *JSONLWriter {
	return &JSONLWriter{
		w:         w,
		jobID:     jobID,
		connector: connector,
	}
}

// WriteEntry emits a browse entry record.
func (jw *JSONLWriter) WriteEntry(ctx context.Context, entry *EntryRecord) error {
	return jw.writeRecord(ctx, TypeEntry, entry)
}

// WritePage emits a document page record.
func (jw *JSONLWriter) WritePage(ctx context.Context, page *PageRecord) error {
	return jw.writeRecord(ctx, TypePage, page)
}

// WriteVariable emits a content variable record.
func (jw *JSONLWriter) WriteVariable(ctx context.Context, v *VariableRecord) error {
	return jw.writeRecord(ctx, TypeVariable, v)
}

// WriteMessage emits a tool message record.
func (jw *JSONLWriter) WriteMessage(ctx context.Context, msg *MessageRecord) error {
	return jw.writeRecord(ctx, TypeMessage, msg)
}

// WriteChunk emits a model chunk record.
func (jw *JSONLWriter) WriteChunk(ctx context.Context, chunk *ChunkRecord) error {
	return jw.writeRecord(ctx, TypeChunk, chunk)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

// WriteSummary emits a summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer as closed.
//
// If the underlying writer implements io.Closer, it is NOT closed.
// The caller is responsible for closing the underlying writer.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line.
//
// This method holds the mutex for the entire operation to ensure atomic
// line writes.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Marshal the payload outside the lock.
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{
		Type:      recordType,
		TS:        time.Now().UTC(),
		JobID:     jw.jobID,
		Connector: jw.connector,
		Data:      dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer.Write may return n < len(p) with a nil error; a short
	// write would silently truncate JSONL lines and corrupt output.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

// writeAll writes all bytes to w, handling short writes.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Compile-time check that JSONLWriter implements Writer.
var _ Writer = (*JSONLWriter)(nil)
