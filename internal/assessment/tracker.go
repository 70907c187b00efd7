package assessment

import (
	"sync"
	"time"

	"github.com/jihoonkang/malhagi/internal/audio"
)

// ResponseTracker follows one outbound response issued to the remote model.
// Audio completion and response completion are independent signals and can
// arrive in either order; they are tracked separately and must not be
// conflated.
type ResponseTracker struct {
	mu               sync.Mutex
	role             ResponseRole
	audioStarted     bool
	audioComplete    bool
	responseComplete bool
	audioBytes       int64
	done             chan struct{}
}

func newResponseTracker(role ResponseRole) *ResponseTracker {
	return &ResponseTracker{
		role: role,
		done: make(chan struct{}),
	}
}

func (t *ResponseTracker) Role() ResponseRole { return t.role }

func (t *ResponseTracker) MarkAudioStarted() {
	t.mu.Lock()
	t.audioStarted = true
	t.mu.Unlock()
}

func (t *ResponseTracker) AddAudioBytes(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.audioBytes += int64(n)
	t.mu.Unlock()
}

// MarkAudioComplete records that the spoken transcript for this response is
// fully delivered and releases anything blocked on the completion signal.
// Idempotent.
func (t *ResponseTracker) MarkAudioComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.audioComplete {
		return
	}
	t.audioComplete = true
	close(t.done)
}

// MarkResponseComplete records that the remote finished the response object
// itself. This says nothing about audio delivery. Idempotent.
func (t *ResponseTracker) MarkResponseComplete() {
	t.mu.Lock()
	t.responseComplete = true
	t.mu.Unlock()
}

func (t *ResponseTracker) AudioStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audioStarted
}

func (t *ResponseTracker) AudioComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audioComplete
}

func (t *ResponseTracker) ResponseComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.responseComplete
}

func (t *ResponseTracker) AudioBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audioBytes
}

// EstimatedDuration derives spoken duration from the received byte count.
func (t *ResponseTracker) EstimatedDuration() time.Duration {
	t.mu.Lock()
	bytes := t.audioBytes
	t.mu.Unlock()
	return audio.Duration(bytes)
}

// completionSignal is closed once audio for this response finished.
func (t *ResponseTracker) completionSignal() <-chan struct{} { return t.done }
