package comm

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// FrameHandler is called when a frame payload is received.
type FrameHandler interface {
	HandleFrame(ctx context.Context, payload []byte)
}

// HandleFrameFunc is func type of FrameHandler.
type HandleFrameFunc func(context.Context, []byte)

// HandleFrame implements FrameHandler.
func (f HandleFrameFunc) HandleFrame(ctx context.Context, payload []byte) {
	f(ctx, payload)
}

// LineHandler is called when a debug line is received.
type LineHandler interface {
	HandleLine(ctx context.Context, line string)
}

// HandleLineFunc is func type of LineHandler.
type HandleLineFunc func(context.Context, string)

// HandleLine implements LineHandler.
func (f HandleLineFunc) HandleLine(ctx context.Context, line string) {
	f(ctx, line)
}

// CorruptionHandler is called when a frame is discarded.
type CorruptionHandler interface {
	FrameCorrupted(ctx context.Context, err error)
}

// FrameCorruptedFunc is func type of CorruptionHandler.
type FrameCorruptedFunc func(context.Context, error)

// FrameCorrupted implements CorruptionHandler.
func (f FrameCorruptedFunc) FrameCorrupted(ctx context.Context, err error) {
	f(ctx, err)
}

// Stats counts traffic through a FIFO.
type Stats struct {
	FramesIn  uint64 `json:"framesIn"`
	FramesOut uint64 `json:"framesOut"`
	Lines     uint64 `json:"lines"`
	Corrupted uint64 `json:"corrupted"`
	BytesIn   uint64 `json:"bytesIn"`
	BytesOut  uint64 `json:"bytesOut"`
}

// FIFO reads frames from and writes frames to a stream.
// Writes are serialized so they can come from any goroutine.
type FIFO struct {
	ReadWriter io.ReadWriter
	Codec      Codec
	Handler    FrameHandler
	Lines      LineHandler
	Corruption CorruptionHandler
	// IdleDelay is how long to pause when a read returns no bytes.
	IdleDelay time.Duration

	writeLock sync.Mutex
	parser    Parser
	stats     Stats
}

// DefaultIdleDelay is used when FIFO.IdleDelay is zero.
const DefaultIdleDelay = 10 * time.Millisecond

const readBufferSize = 256

// NewFIFO creates a FIFO.
func NewFIFO(rw io.ReadWriter) *FIFO {
	return &FIFO{ReadWriter: rw, IdleDelay: DefaultIdleDelay}
}

// Stats returns a snapshot of traffic counters.
func (f *FIFO) Stats() Stats {
	return Stats{
		FramesIn:  atomic.LoadUint64(&f.stats.FramesIn),
		FramesOut: atomic.LoadUint64(&f.stats.FramesOut),
		Lines:     atomic.LoadUint64(&f.stats.Lines),
		Corrupted: atomic.LoadUint64(&f.stats.Corrupted),
		BytesIn:   atomic.LoadUint64(&f.stats.BytesIn),
		BytesOut:  atomic.LoadUint64(&f.stats.BytesOut),
	}
}

// Send writes one frame carrying payload.
func (f *FIFO) Send(payload []byte) error {
	frame := f.Codec.Encode(payload)
	f.writeLock.Lock()
	defer f.writeLock.Unlock()
	if f.ReadWriter == nil {
		return ErrNotRunning
	}
	n, err := f.ReadWriter.Write(frame)
	atomic.AddUint64(&f.stats.BytesOut, uint64(n))
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	atomic.AddUint64(&f.stats.FramesOut, 1)
	return nil
}

// Run reads the stream until ctx is done or the stream fails.
// The stream is expected to return from Read periodically (read timeout),
// cancellation is only observed between reads.
func (f *FIFO) Run(ctx context.Context) error {
	f.parser.Reset()
	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := f.ReadWriter.Read(buf)
		if err != nil && !os.IsTimeout(err) {
			return &TransportError{Op: "read", Err: err}
		}
		if n == 0 {
			f.idle(ctx)
			continue
		}
		atomic.AddUint64(&f.stats.BytesIn, uint64(n))
		for _, chunk := range f.parser.Feed(buf[:n]) {
			f.dispatch(ctx, chunk)
		}
	}
}

func (f *FIFO) idle(ctx context.Context) {
	delay := f.IdleDelay
	if delay <= 0 {
		delay = DefaultIdleDelay
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (f *FIFO) dispatch(ctx context.Context, chunk Chunk) {
	switch chunk.Kind {
	case ChunkDebug:
		atomic.AddUint64(&f.stats.Lines, 1)
		if h := f.Lines; h != nil {
			h.HandleLine(ctx, string(chunk.Data))
		}
	case ChunkFrame:
		payload, err := f.Codec.Decode(chunk.Data)
		if err != nil {
			f.Discard(ctx, err)
			return
		}
		atomic.AddUint64(&f.stats.FramesIn, 1)
		if h := f.Handler; h != nil {
			h.HandleFrame(ctx, payload)
		}
	case ChunkOverflow:
		f.Discard(ctx, corrupted("no terminator in buffered bytes", len(chunk.Data)))
	}
}

// Discard counts a corrupted frame and reports it.
// Handlers call it when a decoded payload can't be interpreted.
func (f *FIFO) Discard(ctx context.Context, err error) {
	atomic.AddUint64(&f.stats.Corrupted, 1)
	if h := f.Corruption; h != nil {
		h.FrameCorrupted(ctx, err)
	}
}
