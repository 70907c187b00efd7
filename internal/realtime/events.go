package realtime

import (
	"encoding/json"
	"fmt"
)

// EventType identifies inbound realtime payload variants.
type EventType string

const (
	TypeSessionCreated              EventType = "session.created"
	TypeSessionUpdated              EventType = "session.updated"
	TypeResponseCreated             EventType = "response.created"
	TypeResponseDone                EventType = "response.done"
	TypeAudioDelta                  EventType = "response.audio.delta"
	TypeAudioTranscriptDelta        EventType = "response.audio_transcript.delta"
	TypeAudioTranscriptDone         EventType = "response.audio_transcript.done"
	TypeInputTranscriptionCompleted EventType = "conversation.item.input_audio_transcription.completed"
	TypeFunctionCallArgumentsDone   EventType = "response.function_call_arguments.done"
	TypeError                       EventType = "error"
)

// ResponseInfo carries the identifiers nested under creation/done events.
type ResponseInfo struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// ErrorInfo is the remote error payload.
type ErrorInfo struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Event is one inbound protocol event. Fields are populated per type; a
// consumer switches on Type and reads only what that type defines. ResponseID
// arrives either at the top level or nested under Response depending on the
// event family.
type Event struct {
	Type       EventType       `json:"type"`
	EventID    string          `json:"event_id,omitempty"`
	ResponseID string          `json:"response_id,omitempty"`
	ItemID     string          `json:"item_id,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Name       string          `json:"name,omitempty"`
	CallID     string          `json:"call_id,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Response   *ResponseInfo   `json:"response,omitempty"`
	Error      *ErrorInfo      `json:"error,omitempty"`
}

// EffectiveResponseID resolves the response id regardless of where the event
// family nests it.
func (e Event) EffectiveResponseID() string {
	if e.ResponseID != "" {
		return e.ResponseID
	}
	if e.Response != nil {
		return e.Response.ID
	}
	return ""
}

func ParseEvent(raw []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, fmt.Errorf("invalid event envelope: %w", err)
	}
	if evt.Type == "" {
		return Event{}, fmt.Errorf("event missing type")
	}
	return evt, nil
}
