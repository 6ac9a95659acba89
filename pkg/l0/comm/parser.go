package comm

import "bytes"

// DefaultMaxBufferSize limits bytes buffered without seeing a terminator.
const DefaultMaxBufferSize = 4096

var debugTerminator = []byte("\r\n")

// ChunkKind tells how a chunk was terminated.
type ChunkKind int

const (
	// ChunkFrame is a stuffed frame terminated by 0x00.
	ChunkFrame ChunkKind = iota
	// ChunkDebug is a text line terminated by "\r\n".
	ChunkDebug
	// ChunkOverflow reports bytes dropped because no terminator was found
	// within the buffer limit.
	ChunkOverflow
)

// String implements fmt.Stringer.
func (k ChunkKind) String() string {
	switch k {
	case ChunkFrame:
		return "frame"
	case ChunkDebug:
		return "debug"
	case ChunkOverflow:
		return "overflow"
	}
	return "unknown"
}

// Chunk is a piece of the stream split by Parser.
type Chunk struct {
	Kind ChunkKind
	Data []byte
}

// Parser splits a byte stream into frames and debug lines.
type Parser struct {
	MaxBufferSize int

	buf []byte
}

// Buffered returns the number of bytes waiting for a terminator.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Reset drops buffered bytes.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
}

// Feed appends raw bytes and returns all complete chunks in stream order.
// Incomplete trailing bytes stay buffered for the next call.
func (p *Parser) Feed(raw []byte) (chunks []Chunk) {
	p.buf = append(p.buf, raw...)
	for {
		frameAt := bytes.IndexByte(p.buf, FrameTerminator)
		lineAt := bytes.Index(p.buf, debugTerminator)
		switch {
		case frameAt < 0 && lineAt < 0:
			if limit := p.maxBufferSize(); len(p.buf) > limit {
				chunks = append(chunks, Chunk{Kind: ChunkOverflow, Data: p.take(len(p.buf), 0)})
			}
			return
		case lineAt < 0 || (frameAt >= 0 && frameAt < lineAt):
			chunks = append(chunks, Chunk{Kind: ChunkFrame, Data: p.take(frameAt, 1)})
		default:
			chunks = append(chunks, Chunk{Kind: ChunkDebug, Data: p.take(lineAt, len(debugTerminator))})
		}
	}
}

func (p *Parser) take(n, skip int) []byte {
	data := make([]byte, n)
	copy(data, p.buf[:n])
	p.buf = append(p.buf[:0], p.buf[n+skip:]...)
	return data
}

func (p *Parser) maxBufferSize() int {
	if p.MaxBufferSize > 0 {
		return p.MaxBufferSize
	}
	return DefaultMaxBufferSize
}
