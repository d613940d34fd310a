package streaming

import "fmt"

// ChunkCodec is the small capability set that stands in for the source
// system's prototype-chain subclassing of its data/file stream variants
// (§9 design notes): encode a domain value for the wire, decode a wire
// value back, and merge a run of decoded chunks into the single value
// read()/readAll() hand back. A data stream and a file stream differ
// only in which ChunkCodec they plug in — the Writer and Reader
// themselves don't know or care which one they were built with.
type ChunkCodec interface {
	// EncodeChunk prepares v for the wire and reports how many bytes it
	// should count against maxPendingBytes.
	EncodeChunk(v any) (wire any, byteLen int)

	// DecodeChunk turns a wire value back into the value handed to the
	// reader.
	DecodeChunk(wire any) (any, error)

	// MergeChunks combines a full run of decoded chunks into the single
	// value read() returns.
	MergeChunks(chunks []any) (any, error)
}

// DataCodec is the ChunkCodec for ordinary JSON-shaped data streams:
// chunks pass through unchanged, and merging multiple chunks yields the
// slice of them (a single chunk merges to itself).
type DataCodec struct{}

func (DataCodec) EncodeChunk(v any) (any, int) {
	return v, byteSize(v)
}

func (DataCodec) DecodeChunk(wire any) (any, error) {
	return wire, nil
}

func (DataCodec) MergeChunks(chunks []any) (any, error) {
	if len(chunks) == 1 {
		return chunks[0], nil
	}
	return chunks, nil
}

// FileCodec is the ChunkCodec for binary file streams: every chunk is a
// []byte, and merging concatenates them into one buffer.
type FileCodec struct{}

func (FileCodec) EncodeChunk(v any) (any, int) {
	b, ok := v.([]byte)
	if !ok {
		return v, byteSize(v)
	}
	return b, len(b)
}

func (FileCodec) DecodeChunk(wire any) (any, error) {
	switch v := wire.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("streaming: file chunk is not byte-like: %T", wire)
	}
}

func (FileCodec) MergeChunks(chunks []any) (any, error) {
	total := 0
	bufs := make([][]byte, 0, len(chunks))
	for _, c := range chunks {
		b, ok := c.([]byte)
		if !ok {
			return nil, fmt.Errorf("streaming: file chunk is not []byte: %T", c)
		}
		bufs = append(bufs, b)
		total += len(b)
	}
	merged := make([]byte, 0, total)
	for _, b := range bufs {
		merged = append(merged, b...)
	}
	return merged, nil
}

// byteSize estimates the wire weight of an arbitrary chunk for
// maxPendingBytes accounting. Strings and byte slices count their actual
// length; anything else counts as zero, the same rule the teacher's
// chunked-response writer uses for non-buffer SSE payloads.
func byteSize(v any) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []byte:
		return len(t)
	default:
		return 0
	}
}
