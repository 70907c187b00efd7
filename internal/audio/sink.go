package audio

import (
	"sync"
	"time"
)

// SampleRate is the fixed remote output format: PCM16 mono at 24kHz.
const (
	SampleRate     = 24000
	BytesPerSample = 2
	BytesPerSecond = SampleRate * BytesPerSample
)

// Sink accepts raw PCM16LE chunks for playback. Implementations must not
// block the event loop; buffering is the sink's problem.
type Sink interface {
	Write(pcm []byte)
}

// PadToEven zero-pads an odd-length PCM16 chunk. Odd payloads are malformed
// but recoverable; a truncated sample beats a dropped chunk.
func PadToEven(pcm []byte) []byte {
	if len(pcm)%2 == 0 {
		return pcm
	}
	return append(pcm, 0)
}

// Duration estimates playback time of a PCM16 mono 24kHz byte count.
func Duration(byteCount int64) time.Duration {
	if byteCount <= 0 {
		return 0
	}
	return time.Duration(float64(byteCount) / BytesPerSecond * float64(time.Second))
}

// BufferSink accumulates played audio in memory. Used for tests and for
// optional session dumps.
type BufferSink struct {
	mu  sync.Mutex
	buf []byte
}

func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

func (s *BufferSink) Write(pcm []byte) {
	s.mu.Lock()
	s.buf = append(s.buf, pcm...)
	s.mu.Unlock()
}

func (s *BufferSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

func (s *BufferSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.buf))
	copy(out, s.buf)
	return out
}
