package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/jihoonkang/malhagi/internal/assessment"
	"github.com/jihoonkang/malhagi/internal/audio"
	"github.com/jihoonkang/malhagi/internal/observability"
	"github.com/jihoonkang/malhagi/internal/realtime"
	"github.com/jihoonkang/malhagi/internal/report"
	"github.com/jihoonkang/malhagi/internal/reportstore"
	"github.com/jihoonkang/malhagi/internal/transcripts"
)

// teardownGrace bounds how long session teardown waits for the background
// report task.
const teardownGrace = 2 * time.Second

// Config wires one interview session. Generator and Realtime are required;
// Store, Metrics, OnPhase and AudioDumpDir are optional.
type Config struct {
	SessionID             string
	TranscriptionLanguage string
	Realtime              realtime.ClientConfig
	Generator             report.Generator
	Store                 reportstore.Store
	Metrics               *observability.Metrics
	Sink                  audio.Sink
	Prompts               *Prompts
	Retry                 RetryPolicy
	OnPhase               func(assessment.Phase)
	OnTurn                func()
	AudioDumpDir          string
}

// Agent runs one interview session end to end: connect, configure the remote
// model, route inbound events, and drive the assessment delivery until the
// machine completes or the context ends.
type Agent struct {
	cfg     Config
	machine *assessment.Machine
	history *transcripts.History

	mu        sync.Mutex
	sendAudio func(ctx context.Context, audioBase64 string) error

	doneOnce sync.Once
	done     chan struct{}
}

func New(cfg Config) (*Agent, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("report generator is required")
	}
	if cfg.Prompts == nil {
		cfg.Prompts = DefaultPrompts()
	}
	if cfg.Sink == nil {
		cfg.Sink = audio.NewBufferSink()
	}
	if cfg.TranscriptionLanguage == "" {
		cfg.TranscriptionLanguage = "ko"
	}
	return &Agent{
		cfg:     cfg,
		machine: assessment.NewMachine(),
		history: transcripts.NewHistory(),
		done:    make(chan struct{}),
	}, nil
}

// Stop ends the session loop from outside, e.g. an explicit end request over
// the HTTP API.
func (a *Agent) Stop() {
	a.signalDone()
}

func (a *Agent) signalDone() {
	a.doneOnce.Do(func() { close(a.done) })
}

// PushAudio forwards one PCM16 chunk of learner audio to the remote input
// buffer. Returns an error while the session is not connected.
func (a *Agent) PushAudio(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return fmt.Errorf("empty audio chunk")
	}
	a.mu.Lock()
	send := a.sendAudio
	a.mu.Unlock()
	if send == nil {
		return fmt.Errorf("session %s not connected", a.cfg.SessionID)
	}
	return send(ctx, base64.StdEncoding.EncodeToString(audio.PadToEven(pcm)))
}

func (a *Agent) setSendAudio(fn func(ctx context.Context, audioBase64 string) error) {
	a.mu.Lock()
	a.sendAudio = fn
	a.mu.Unlock()
}

// dumpAudio writes the session's played audio to a WAV file when a dump
// directory is configured and the sink buffers in memory.
func (a *Agent) dumpAudio() {
	if a.cfg.AudioDumpDir == "" {
		return
	}
	bs, ok := a.cfg.Sink.(*audio.BufferSink)
	if !ok || bs.Len() == 0 {
		return
	}
	path := filepath.Join(a.cfg.AudioDumpDir, a.cfg.SessionID+".wav")
	if err := audio.WriteWAVPCM16LEFile(path, bs.Bytes()); err != nil {
		log.Printf("agent: audio dump failed: %v", err)
	}
}

// Run blocks until the delivery completes, the remote connection drops, or
// ctx is cancelled. It owns the websocket connection for the session.
func (a *Agent) Run(ctx context.Context) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := realtime.Dial(sessCtx, a.cfg.Realtime)
	if err != nil {
		return fmt.Errorf("connect session %s: %w", a.cfg.SessionID, err)
	}
	defer client.Close()
	defer a.dumpAudio()
	a.setSendAudio(client.SendInputAudio)
	defer a.setSendAudio(nil)

	if err := client.SendSessionUpdate(sessCtx, a.cfg.Prompts.SessionConfig(a.cfg.TranscriptionLanguage)); err != nil {
		return fmt.Errorf("configure session %s: %w", a.cfg.SessionID, err)
	}

	if a.cfg.Metrics != nil {
		a.cfg.Metrics.ActiveSessions.Inc()
		defer a.cfg.Metrics.ActiveSessions.Dec()
	}
	a.machine.SetPhaseObserver(func(p assessment.Phase) {
		if a.cfg.Metrics != nil {
			a.cfg.Metrics.PhaseTransitions.WithLabelValues(string(p)).Inc()
		}
		if a.cfg.OnPhase != nil {
			a.cfg.OnPhase(p)
		}
	})

	orch := NewOrchestrator(OrchestratorConfig{
		SessionID:  a.cfg.SessionID,
		Machine:    a.machine,
		Sender:     client,
		History:    a.history,
		Generator:  a.cfg.Generator,
		Store:      a.cfg.Store,
		Prompts:    a.cfg.Prompts,
		Metrics:    a.cfg.Metrics,
		Retry:      a.cfg.Retry,
		OnComplete: a.signalDone,
	})
	defer func() {
		cancel()
		orch.Wait(teardownGrace)
	}()

	router := NewRouter(RouterConfig{
		Machine:        a.machine,
		History:        a.history,
		Sink:           a.cfg.Sink,
		Sender:         client,
		Prompts:        a.cfg.Prompts,
		Metrics:        a.cfg.Metrics,
		OnResponseDone: func(responseID string) { orch.NotifyResponseDone(sessCtx, responseID) },
		OnEarlyExit:    orch.EarlyExit,
		OnUserTurn:     a.cfg.OnTurn,
	})

	log.Printf("agent: session %s started", a.cfg.SessionID)
	for {
		select {
		case <-sessCtx.Done():
			return sessCtx.Err()
		case <-a.done:
			log.Printf("agent: session %s finished in phase %s", a.cfg.SessionID, a.machine.Phase())
			return nil
		case evt, ok := <-client.Events():
			if !ok {
				return fmt.Errorf("session %s: connection closed", a.cfg.SessionID)
			}
			router.HandleEvent(sessCtx, evt)
		}
	}
}
