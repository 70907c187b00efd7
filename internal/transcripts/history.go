package transcripts

import (
	"fmt"
	"strings"
	"sync"
)

// Speaker labels one side of the interview.
type Speaker string

const (
	SpeakerInterviewer Speaker = "AI"
	SpeakerUser        Speaker = "User"
)

// Utterance is one finished spoken turn.
type Utterance struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// History accumulates the durable interview transcript in arrival order.
// Utterances spoken during assessment delivery are not appended; the caller
// decides what counts as interview content.
type History struct {
	mu         sync.Mutex
	utterances []Utterance
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Append(speaker Speaker, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	h.mu.Lock()
	h.utterances = append(h.utterances, Utterance{Speaker: speaker, Text: text})
	h.mu.Unlock()
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.utterances)
}

// Snapshot returns a copy safe to hand to the report generator while the
// session keeps running.
func (h *History) Snapshot() []Utterance {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Utterance, len(h.utterances))
	copy(out, h.utterances)
	return out
}

// Format renders the transcript for the report prompt.
func Format(utterances []Utterance) string {
	var b strings.Builder
	b.WriteString("=== INTERVIEW TRANSCRIPT ===\n")
	for _, u := range utterances {
		label := "Learner"
		if u.Speaker == SpeakerInterviewer {
			label = "Interviewer"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, u.Text)
	}
	b.WriteString("=== END TRANSCRIPT ===")
	return b.String()
}
