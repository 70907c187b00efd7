package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/jihoonkang/malhagi/internal/assessment"
	"github.com/jihoonkang/malhagi/internal/audio"
	"github.com/jihoonkang/malhagi/internal/observability"
	"github.com/jihoonkang/malhagi/internal/realtime"
	"github.com/jihoonkang/malhagi/internal/transcripts"
)

// Sender is the outbound side of the realtime connection as the router and
// orchestrator see it. *realtime.Client satisfies it; tests supply a fake.
type Sender interface {
	SendBufferClear(ctx context.Context) error
	SendToolOutput(ctx context.Context, callID, output string) error
	SendResponseCreate(ctx context.Context, instructions, languageHint string) error
}

// Router demultiplexes inbound realtime events into state machine mutations
// and side effects. It runs on the single session event loop; the only other
// writer it coordinates with is the delivery orchestrator, which it notifies
// through callbacks and never blocks on.
type Router struct {
	machine *assessment.Machine
	history *transcripts.History
	sink    audio.Sink
	sender  Sender
	prompts *Prompts
	metrics *observability.Metrics

	onResponseDone func(responseID string)
	onEarlyExit    func()
	onUserTurn     func()

	mu            sync.Mutex
	transcriptBuf strings.Builder
}

type RouterConfig struct {
	Machine *assessment.Machine
	History *transcripts.History
	Sink    audio.Sink
	Sender  Sender
	Prompts *Prompts
	Metrics *observability.Metrics

	OnResponseDone func(responseID string)
	OnEarlyExit    func()
	// OnUserTurn fires for each user utterance recorded as interview content.
	OnUserTurn func()
}

func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		machine:        cfg.Machine,
		history:        cfg.History,
		sink:           cfg.Sink,
		sender:         cfg.Sender,
		prompts:        cfg.Prompts,
		metrics:        cfg.Metrics,
		onResponseDone: cfg.OnResponseDone,
		onEarlyExit:    cfg.OnEarlyExit,
		onUserTurn:     cfg.OnUserTurn,
	}
}

// HandleEvent dispatches one inbound event. Protocol anomalies are recovered
// locally and never returned as errors; the router only logs them.
func (r *Router) HandleEvent(ctx context.Context, evt realtime.Event) {
	if r.metrics != nil {
		r.metrics.RealtimeEvents.WithLabelValues(string(evt.Type)).Inc()
	}

	switch evt.Type {
	case realtime.TypeAudioDelta:
		r.handleAudioDelta(evt)
	case realtime.TypeAudioTranscriptDelta:
		r.appendTranscriptDelta(evt.Delta)
	case realtime.TypeAudioTranscriptDone:
		r.handleTranscriptDone(evt)
	case realtime.TypeInputTranscriptionCompleted:
		r.handleUserTranscript(evt)
	case realtime.TypeFunctionCallArgumentsDone:
		r.handleFunctionCall(ctx, evt)
	case realtime.TypeResponseCreated:
		r.handleResponseCreated(evt)
	case realtime.TypeResponseDone:
		r.handleResponseDone(evt)
	case realtime.TypeError:
		r.handleError(evt)
	}
}

func (r *Router) handleAudioDelta(evt realtime.Event) {
	pcm, err := base64.StdEncoding.DecodeString(evt.Delta)
	if err != nil {
		log.Printf("router: undecodable audio delta: %v", err)
		r.anomaly("bad_audio_delta")
		return
	}
	if len(pcm)%2 != 0 {
		r.anomaly("odd_audio_chunk")
		pcm = audio.PadToEven(pcm)
	}
	r.sink.Write(pcm)

	if !r.machine.Active() {
		return
	}
	id := evt.EffectiveResponseID()
	if id == "" {
		return
	}
	r.machine.OnAudioChunk(id)
	r.machine.OnAudioBytes(id, len(pcm))
}

func (r *Router) appendTranscriptDelta(delta string) {
	r.mu.Lock()
	r.transcriptBuf.WriteString(delta)
	r.mu.Unlock()
}

func (r *Router) handleTranscriptDone(evt realtime.Event) {
	r.mu.Lock()
	text := evt.Transcript
	if text == "" {
		text = r.transcriptBuf.String()
	}
	r.transcriptBuf.Reset()
	r.mu.Unlock()

	if r.machine.Active() {
		// Speech produced during delivery is choreography, not interview
		// content.
		if id := evt.EffectiveResponseID(); id != "" {
			r.machine.OnAudioTranscriptDone(id)
		}
		return
	}
	r.history.Append(transcripts.SpeakerInterviewer, text)
}

func (r *Router) handleUserTranscript(evt realtime.Event) {
	if !r.machine.Active() {
		r.history.Append(transcripts.SpeakerUser, evt.Transcript)
		if r.onUserTurn != nil {
			r.onUserTurn()
		}
		return
	}
	if r.prompts.IsAcknowledgment(evt.Transcript) {
		log.Printf("router: user acknowledged during delivery, ending early")
		r.onEarlyExit()
	}
}

func (r *Router) handleFunctionCall(ctx context.Context, evt realtime.Event) {
	if evt.Name != "trigger_assessment" {
		log.Printf("router: unhandled function call %q", evt.Name)
		return
	}
	reason := r.parseTriggerReason(evt.Arguments)
	if !r.machine.Trigger(reason) {
		return
	}

	// Clear buffered user audio so it cannot interfere with the delivery
	// sequence, then have the model speak the acknowledgment.
	if err := r.sender.SendBufferClear(ctx); err != nil {
		log.Printf("router: buffer clear failed: %v", err)
	}
	if err := r.sender.SendToolOutput(ctx, evt.CallID, r.prompts.TriggerToolOut); err != nil {
		log.Printf("router: tool output failed: %v", err)
	}
	if err := r.sender.SendResponseCreate(ctx, "", ""); err != nil {
		log.Printf("router: response create failed: %v", err)
	}
}

func (r *Router) handleResponseCreated(evt realtime.Event) {
	id := evt.EffectiveResponseID()
	if id == "" {
		return
	}
	switch r.machine.Phase() {
	case assessment.PhaseTriggered:
		r.machine.RegisterResponse(id, assessment.RoleAck)
	case assessment.PhaseReportGenerating:
		// Only the spoken summary is registered here. A response created
		// before the report exists is leftover conversation and must not
		// claim the summary slot. The acknowledgment audio is deliberately
		// not a condition: its wait may have timed out and delivery still
		// proceeds.
		if r.machine.VerbalSummary() != "" {
			r.machine.RegisterResponse(id, assessment.RoleSummary)
		}
	case assessment.PhaseSummarySending, assessment.PhaseSummarySpeaking:
		if t, ok := r.machine.Tracker(r.machine.ActiveResponseID()); ok && t.AudioComplete() {
			r.machine.RegisterResponse(id, assessment.RoleGoodbye)
		}
	}
}

func (r *Router) handleResponseDone(evt realtime.Event) {
	id := evt.EffectiveResponseID()
	if id == "" {
		return
	}
	r.machine.OnResponseDone(id)
	if r.machine.Active() {
		r.onResponseDone(id)
	}
}

func (r *Router) handleError(evt realtime.Event) {
	if evt.Error != nil {
		log.Printf("router: remote error [%s/%s]: %s", evt.Error.Type, evt.Error.Code, evt.Error.Message)
	} else {
		log.Printf("router: remote error without payload")
	}
	r.anomaly("remote_error")
}

// parseTriggerReason tolerates both an argument object and a JSON-encoded
// string of one. Anything unparseable falls back to the default reason.
func (r *Router) parseTriggerReason(raw json.RawMessage) string {
	if len(raw) == 0 {
		return DefaultTriggerReason
	}
	var args struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &args); err == nil && args.Reason != "" {
		return args.Reason
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &args); err == nil && args.Reason != "" {
			return args.Reason
		}
	}
	r.anomaly("bad_tool_arguments")
	return DefaultTriggerReason
}

func (r *Router) anomaly(kind string) {
	if r.metrics != nil {
		r.metrics.ProtocolAnomalies.WithLabelValues(kind).Inc()
	}
}
