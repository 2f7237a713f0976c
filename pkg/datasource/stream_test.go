package datasource

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStreamOf(t *testing.T) {
	a := &Blob{Data: []byte("a")}
	b := &Blob{Data: []byte("b")}
	stream := BlobStreamOf(a, b)

	require.True(t, stream.Next())
	assert.Same(t, a, stream.Blob())
	require.True(t, stream.Next())
	assert.Same(t, b, stream.Blob())
	assert.False(t, stream.Next())
	assert.NoError(t, stream.Err())
	// Exhausted streams stay exhausted.
	assert.False(t, stream.Next())
}

func TestBlobStreamError(t *testing.T) {
	wantErr := errors.New("pull failed")
	calls := 0
	stream := NewBlobStream(func() (*Blob, error) {
		calls++
		if calls == 1 {
			return &Blob{Data: []byte("ok")}, nil
		}
		return nil, wantErr
	})

	require.True(t, stream.Next())
	assert.False(t, stream.Next())
	assert.ErrorIs(t, stream.Err(), wantErr)
	// The pull function is not invoked again after an error.
	assert.False(t, stream.Next())
	assert.Equal(t, 2, calls)
}

func TestChunkBufferSmallStaysWhole(t *testing.T) {
	buf := NewChunkBuffer("a.txt", "text/plain", 5, 0)
	assert.Nil(t, buf.Add([]byte("hello")))

	blob := buf.Finish()
	require.NotNil(t, blob)
	assert.Equal(t, []byte("hello"), blob.Data)
	assert.False(t, blob.Meta.IsPartial)
	assert.Equal(t, int64(5), blob.Meta.Size)
	assert.Nil(t, buf.Finish(), "second finish is empty")
}

// With an unknown total the buffer only flushes once the threshold is
// strictly exceeded, so an exact-threshold transfer still ends via Finish.
func TestChunkBufferFlushesPastThreshold(t *testing.T) {
	buf := NewChunkBuffer("big.bin", "application/octet-stream", 0, 10)

	assert.Nil(t, buf.Add([]byte("12345")))
	partial := buf.Add([]byte("67890a"))
	require.NotNil(t, partial)
	assert.True(t, partial.Meta.IsPartial)
	assert.Equal(t, int64(11), partial.Meta.Size)

	final := buf.Finish()
	assert.Nil(t, final, "nothing buffered after the flush")
}

// A transfer whose size is an exact multiple of the flush threshold must
// still terminate on a non-partial blob.
func TestChunkBufferExactMultipleEndsNonPartial(t *testing.T) {
	buf := NewChunkBuffer("even.bin", "application/octet-stream", 32, 16)
	piece := bytes.Repeat([]byte{0x5A}, 8)

	var blobs []*Blob
	for sent := 0; sent < 32; sent += len(piece) {
		if blob := buf.Add(piece); blob != nil {
			blobs = append(blobs, blob)
		}
	}
	if blob := buf.Finish(); blob != nil {
		blobs = append(blobs, blob)
	}

	require.Len(t, blobs, 2)
	assert.True(t, blobs[0].Meta.IsPartial)
	assert.False(t, blobs[1].Meta.IsPartial)
	assert.Equal(t, int64(32), blobs[0].Meta.Size+blobs[1].Meta.Size)
}

func TestChunkBufferTotalEqualsThreshold(t *testing.T) {
	buf := NewChunkBuffer("even.bin", "application/octet-stream", 16, 16)
	assert.Nil(t, buf.Add(bytes.Repeat([]byte{0x5A}, 16)))

	blob := buf.Finish()
	require.NotNil(t, blob)
	assert.False(t, blob.Meta.IsPartial)
	assert.Equal(t, int64(16), blob.Meta.Size)
}

// The final read of a transfer may itself push the buffer over the
// threshold; those bytes still arrive as the non-partial terminal blob.
func TestChunkBufferFinalReadCrossesThreshold(t *testing.T) {
	buf := NewChunkBuffer("odd.bin", "application/octet-stream", 20, 16)

	var blobs []*Blob
	for _, n := range []int{8, 8, 4} {
		if blob := buf.Add(bytes.Repeat([]byte{0x5A}, n)); blob != nil {
			blobs = append(blobs, blob)
		}
	}
	if blob := buf.Finish(); blob != nil {
		blobs = append(blobs, blob)
	}

	require.Len(t, blobs, 2)
	assert.True(t, blobs[0].Meta.IsPartial)
	assert.False(t, blobs[1].Meta.IsPartial)
	assert.Equal(t, int64(20), blobs[0].Meta.Size+blobs[1].Meta.Size)
}

// A 120 MiB transfer through the range/flush policy must produce at least
// two blobs, partial except the last, with sizes summing to the total.
func TestChunkingPolicyLargeTransfer(t *testing.T) {
	const total = 120 * 1024 * 1024
	buf := NewChunkBuffer("large.bin", "application/octet-stream", total, 0)
	piece := bytes.Repeat([]byte{0xAB}, RangeSize)

	var blobs []*Blob
	sent := 0
	for sent < total {
		n := RangeSize
		if total-sent < n {
			n = total - sent
		}
		if blob := buf.Add(piece[:n]); blob != nil {
			blobs = append(blobs, blob)
		}
		sent += n
	}
	if blob := buf.Finish(); blob != nil {
		blobs = append(blobs, blob)
	}

	require.GreaterOrEqual(t, len(blobs), 2)
	var sum int64
	for i, blob := range blobs {
		sum += blob.Meta.Size
		if i < len(blobs)-1 {
			assert.True(t, blob.Meta.IsPartial, "blob %d must be partial", i)
		}
	}
	assert.False(t, blobs[len(blobs)-1].Meta.IsPartial)
	assert.Equal(t, int64(total), sum)
}

func TestVariableStreamCollect(t *testing.T) {
	stream := VariableStreamOf(
		Variable{Name: "title", Value: "Welcome"},
		Variable{Name: "content", Value: "Body text"},
	)
	got := stream.Collect()
	assert.Equal(t, map[string]string{
		"title":   "Welcome",
		"content": "Body text",
	}, got)
	assert.False(t, stream.Next())
}
