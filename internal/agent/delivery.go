package agent

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jihoonkang/malhagi/internal/assessment"
	"github.com/jihoonkang/malhagi/internal/observability"
	"github.com/jihoonkang/malhagi/internal/report"
	"github.com/jihoonkang/malhagi/internal/reportstore"
	"github.com/jihoonkang/malhagi/internal/transcripts"
)

// RetryPolicy decides whether a failed report generation should be retried.
// The default is nil: no retry, the machine stays in report_generating and the
// learner is told to restart the session. A duplicate report is worse than a
// clean manual restart.
type RetryPolicy interface {
	ShouldRetry(attempt int, err error) bool
}

const (
	ackAudioTimeout     = 10 * time.Second
	summaryAudioTimeout = 20 * time.Second
	goodbyeAudioTimeout = 10 * time.Second

	drainMargin    = 3 * time.Second
	minDrainDelay  = 5 * time.Second
	maxDrainDelay  = 30 * time.Second
	wordsPerSecond = 2.5
	goodbyeDrain   = 3 * time.Second
)

// Orchestrator performs the delivery choreography. The router notifies it on
// response completion; it branches on the current phase, waits out audio with
// bounded timeouts, and drives the next outbound message. All of that,
// including the slow report call, runs on supervised background goroutines so
// the event loop is never blocked.
type Orchestrator struct {
	machine   *assessment.Machine
	sender    Sender
	history   *transcripts.History
	generator report.Generator
	store     reportstore.Store
	prompts   *Prompts
	metrics   *observability.Metrics
	retry     RetryPolicy

	sessionID  string
	onComplete func()

	// Choreography timings, defaulted from the package constants. Tests
	// shrink them.
	ackTimeout     time.Duration
	summaryTimeout time.Duration
	goodbyeTimeout time.Duration
	drainMargin    time.Duration
	minDrain       time.Duration
	maxDrain       time.Duration
	goodbyeDrain   time.Duration

	wg sync.WaitGroup
}

type OrchestratorConfig struct {
	SessionID  string
	Machine    *assessment.Machine
	Sender     Sender
	History    *transcripts.History
	Generator  report.Generator
	Store      reportstore.Store
	Prompts    *Prompts
	Metrics    *observability.Metrics
	Retry      RetryPolicy
	OnComplete func()
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		machine:        cfg.Machine,
		sender:         cfg.Sender,
		history:        cfg.History,
		generator:      cfg.Generator,
		store:          cfg.Store,
		prompts:        cfg.Prompts,
		metrics:        cfg.Metrics,
		retry:          cfg.Retry,
		sessionID:      cfg.SessionID,
		onComplete:     cfg.OnComplete,
		ackTimeout:     ackAudioTimeout,
		summaryTimeout: summaryAudioTimeout,
		goodbyeTimeout: goodbyeAudioTimeout,
		drainMargin:    drainMargin,
		minDrain:       minDrainDelay,
		maxDrain:       maxDrainDelay,
		goodbyeDrain:   goodbyeDrain,
	}
}

// NotifyResponseDone is the choreography entry point, invoked by the router
// after each response.done during an active assessment. The work runs on a
// supervised goroutine: the choreography sleeps and waits on audio-completion
// signals that arrive on the very event loop the router runs on, so it must
// never execute inline.
func (o *Orchestrator) NotifyResponseDone(ctx context.Context, responseID string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.dispatchResponseDone(ctx, responseID)
	}()
}

func (o *Orchestrator) dispatchResponseDone(ctx context.Context, responseID string) {
	switch o.machine.Phase() {
	case assessment.PhaseAckGenerating, assessment.PhaseAckSpeaking:
		o.handleAckDone(ctx, responseID)
	case assessment.PhaseSummarySending, assessment.PhaseSummarySpeaking:
		o.handleSummaryDone(ctx, responseID)
	case assessment.PhaseGoodbyeSending, assessment.PhaseGoodbyeSpeaking:
		o.handleGoodbyeDone(ctx, responseID)
	}
}

// EarlyExit ends the delivery immediately, preempting whatever phase is in
// progress. Called when the learner verbally acknowledges mid-sequence.
func (o *Orchestrator) EarlyExit() {
	if !o.machine.Active() {
		return
	}
	o.machine.MarkComplete()
	o.onComplete()
}

// Wait blocks until all background choreography tasks finish or the grace
// period elapses. Called during session teardown; a task still running after
// the grace period is abandoned along with its partial work.
func (o *Orchestrator) Wait(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		log.Printf("delivery: background task still running after %s grace, abandoning", grace)
		return false
	}
}

func (o *Orchestrator) handleAckDone(ctx context.Context, responseID string) {
	if !o.machine.WaitForAudioComplete(ctx, responseID, o.ackTimeout) {
		log.Printf("delivery: acknowledgment audio timeout, proceeding with report generation")
	}
	if !o.machine.CanProceedToReportGeneration() {
		return
	}
	if !o.machine.StartReportGeneration() {
		return
	}
	o.generateAndSpeak(ctx)
}

func (o *Orchestrator) generateAndSpeak(ctx context.Context) {
	transcript := transcripts.Format(o.history.Snapshot())

	var (
		rep     report.Report
		err     error
		attempt int
	)
	for {
		start := time.Now()
		rep, err = o.generator.Generate(ctx, transcript)
		if o.metrics != nil {
			o.metrics.ObserveReportLatency(time.Since(start))
		}
		if err == nil {
			break
		}
		attempt++
		if o.retry != nil && o.retry.ShouldRetry(attempt, err) {
			log.Printf("delivery: report generation failed (attempt %d), retrying: %v", attempt, err)
			continue
		}
		// No retry: the machine stays in report_generating and the session
		// must be ended manually.
		log.Printf("delivery: report generation failed: %v", err)
		if o.metrics != nil {
			o.metrics.ReportFailures.Inc()
		}
		if sendErr := o.sender.SendResponseCreate(ctx, speakExactly(o.prompts.Apology), "English"); sendErr != nil {
			log.Printf("delivery: could not deliver apology: %v", sendErr)
		}
		return
	}

	summary := report.VerbalSummary(rep)
	o.machine.SetVerbalSummary(summary)
	log.Printf("delivery: report ready, level %s, summary %d words", rep.ProficiencyLevel, len(strings.Fields(summary)))

	if o.store != nil {
		rec := reportstore.Record{
			SessionID:     o.sessionID,
			TriggerReason: o.machine.TriggerReason(),
			Report:        rep,
			VerbalSummary: summary,
			TurnCount:     o.history.Len(),
		}
		if saveErr := o.store.Save(ctx, rec); saveErr != nil {
			log.Printf("delivery: report persistence failed: %v", saveErr)
		}
	}

	if err := o.sender.SendResponseCreate(ctx, speakExactly(summary), DetectLanguageHint(summary)); err != nil {
		log.Printf("delivery: could not send summary: %v", err)
	}
}

func (o *Orchestrator) handleSummaryDone(ctx context.Context, responseID string) {
	if !o.machine.WaitForAudioComplete(ctx, responseID, o.summaryTimeout) {
		log.Printf("delivery: summary audio timeout, proceeding with goodbye")
	}

	delay := o.drainDelay(responseID)
	log.Printf("delivery: draining playback buffer for %s", delay)
	if !sleepCtx(ctx, delay) {
		return
	}

	if !o.machine.CanSendGoodbye() {
		return
	}
	if err := o.sender.SendResponseCreate(ctx, speakExactly(o.prompts.Goodbye), "English"); err != nil {
		log.Printf("delivery: could not send goodbye: %v", err)
	}
}

func (o *Orchestrator) handleGoodbyeDone(ctx context.Context, responseID string) {
	if !o.machine.WaitForAudioComplete(ctx, responseID, o.goodbyeTimeout) {
		log.Printf("delivery: goodbye audio timeout, ending anyway")
	}
	sleepCtx(ctx, o.goodbyeDrain)
	o.machine.MarkComplete()
	o.onComplete()
}

// drainDelay is the extra wait after audio-complete that covers client-side
// playback buffering. Byte-derived duration when the tracker saw audio,
// otherwise a clamped word-count estimate over the summary text.
func (o *Orchestrator) drainDelay(responseID string) time.Duration {
	if t, ok := o.machine.Tracker(responseID); ok && t.AudioBytes() > 0 {
		return t.EstimatedDuration() + o.drainMargin
	}
	words := len(strings.Fields(o.machine.VerbalSummary()))
	est := time.Duration(float64(words)/wordsPerSecond*float64(time.Second)) + o.drainMargin
	if est < o.minDrain {
		return o.minDrain
	}
	if est > o.maxDrain {
		return o.maxDrain
	}
	return est
}

func speakExactly(text string) string {
	return "Speak this text exactly as written: " + text
}

// sleepCtx sleeps for d unless ctx ends first; reports whether the full sleep
// ran.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
