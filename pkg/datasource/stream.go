package datasource

// Download chunking policy. These are contract constants, not tunables:
// hosts size their buffers around them.
const (
	// SmallFileLimit is the size below which a download is fetched in one
	// call and emitted as a single blob.
	SmallFileLimit = 50 * 1024 * 1024

	// RangeSize is the sub-range size used when fetching large objects.
	RangeSize = 8 * 1024 * 1024

	// FlushThreshold is the accumulated size at which a partial blob is
	// emitted during a large download.
	FlushThreshold = 100 * 1024 * 1024
)

// BlobMeta describes one emitted blob chunk.
type BlobMeta struct {
	FileName string
	MimeType string

	// Size is the byte count of this chunk.
	Size int64

	// IsPartial is true for every chunk of a multi-chunk transfer except
	// the last. Single-chunk downloads leave it false.
	IsPartial bool
}

// Blob is one chunk of file content plus its metadata.
type Blob struct {
	Data []byte
	Meta BlobMeta
}

// BlobStream is a lazy, finite, forward-only sequence of blobs. Chunks are
// produced as network data arrives and must be consumed in order; the
// stream cannot be restarted.
//
// Usage:
//
//	for stream.Next() {
//	    blob := stream.Blob()
//	    ...
//	}
//	if err := stream.Err(); err != nil { ... }
type BlobStream struct {
	pull    func() (*Blob, error)
	current *Blob
	err     error
	done    bool
}

// NewBlobStream wraps a pull function. pull returns (nil, nil) when the
// sequence is exhausted; any error terminates the stream.
func NewBlobStream(pull func() (*Blob, error)) *BlobStream {
	return &BlobStream{pull: pull}
}

// BlobStreamOf returns a stream over an already-materialized set of blobs.
func BlobStreamOf(blobs ...*Blob) *BlobStream {
	i := 0
	return NewBlobStream(func() (*Blob, error) {
		if i >= len(blobs) {
			return nil, nil
		}
		b := blobs[i]
		i++
		return b, nil
	})
}

// Next advances to the next blob. It returns false at the end of the
// stream or on error; check Err afterwards.
func (s *BlobStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	b, err := s.pull()
	if err != nil {
		s.err = err
		s.done = true
		return false
	}
	if b == nil {
		s.done = true
		return false
	}
	s.current = b
	return true
}

// Blob returns the blob positioned by the last successful Next.
func (s *BlobStream) Blob() *Blob { return s.current }

// Err returns the error that terminated the stream, if any.
func (s *BlobStream) Err() error { return s.err }

// Variable is one named value emitted by a document content fetch.
type Variable struct {
	Name  string
	Value string
}

// VariableStream is a finite, forward-only sequence of variables. Document
// connectors produce small fixed sets, so the stream is materialized, but
// consumers treat it like BlobStream for symmetry.
type VariableStream struct {
	vars []Variable
	idx  int
}

// VariableStreamOf returns a stream over the given variables.
func VariableStreamOf(vars ...Variable) *VariableStream {
	return &VariableStream{vars: vars}
}

// Next advances to the next variable.
func (s *VariableStream) Next() bool {
	if s.idx >= len(s.vars) {
		return false
	}
	s.idx++
	return true
}

// Variable returns the variable positioned by the last successful Next.
func (s *VariableStream) Variable() Variable { return s.vars[s.idx-1] }

// Collect drains the remainder of the stream into a map.
func (s *VariableStream) Collect() map[string]string {
	out := make(map[string]string, len(s.vars)-s.idx)
	for s.Next() {
		v := s.Variable()
		out[v.Name] = v.Value
	}
	return out
}

// ChunkBuffer accumulates ranged reads during a large download and decides
// when a partial blob should be flushed. It implements the policy: emit
// IsPartial=true whenever the buffer reaches FlushThreshold and more data
// remains, then emit the remainder with IsPartial=false. Every transfer
// ends on a non-partial blob, including transfers whose size is an exact
// multiple of the threshold.
type ChunkBuffer struct {
	fileName string
	mimeType string
	total    int64
	flushAt  int
	consumed int64
	buf      []byte
}

// NewChunkBuffer creates a buffer for one file of the given total size.
// total <= 0 means the size is unknown. flushAt <= 0 uses FlushThreshold.
func NewChunkBuffer(fileName, mimeType string, total int64, flushAt int) *ChunkBuffer {
	if flushAt <= 0 {
		flushAt = FlushThreshold
	}
	return &ChunkBuffer{fileName: fileName, mimeType: mimeType, total: total, flushAt: flushAt}
}

// Add appends data and returns a partial blob when the flush threshold is
// reached with more of the transfer still to come, or nil when more data
// fits. The last bytes of a transfer are never flushed here; they leave
// through Finish so the terminal blob carries IsPartial=false.
func (c *ChunkBuffer) Add(data []byte) *Blob {
	c.buf = append(c.buf, data...)
	c.consumed += int64(len(data))
	if c.total > 0 {
		if c.consumed >= c.total || len(c.buf) < c.flushAt {
			return nil
		}
	} else if len(c.buf) <= c.flushAt {
		// Unknown total: hold a buffer sitting exactly at the threshold
		// in case no more data arrives.
		return nil
	}
	return c.take(true)
}

// Finish returns the final blob holding the buffered remainder, or nil
// when the buffer is empty.
func (c *ChunkBuffer) Finish() *Blob {
	if len(c.buf) == 0 {
		return nil
	}
	return c.take(false)
}

func (c *ChunkBuffer) take(partial bool) *Blob {
	data := c.buf
	c.buf = nil
	return &Blob{
		Data: data,
		Meta: BlobMeta{
			FileName:  c.fileName,
			MimeType:  c.mimeType,
			Size:      int64(len(data)),
			IsPartial: partial,
		},
	}
}
