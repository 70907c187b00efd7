package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jihoonkang/malhagi/internal/assessment"
	"github.com/jihoonkang/malhagi/internal/report"
	"github.com/jihoonkang/malhagi/internal/reportstore"
	"github.com/jihoonkang/malhagi/internal/transcripts"
)

type fakeGenerator struct {
	report report.Report
	err    error
	calls  int
}

func (g *fakeGenerator) Generate(context.Context, string) (report.Report, error) {
	g.calls++
	if g.err != nil {
		return report.Report{}, g.err
	}
	return g.report, nil
}

func sampleReport() report.Report {
	return report.Report{
		ProficiencyLevel: "B1",
		CeilingPhase:     "Phase 3",
		CeilingAnalysis:  "Struggled with hypotheticals.",
		DomainAnalyses: []report.DomainAnalysis{
			{Domain: "fluency", Rating: 3, Observation: "steady pace", Evidence: "..."},
			{Domain: "grammar", Rating: 2, Observation: "tense errors", Evidence: "..."},
		},
		StartingModule:       "B1 conversation drills",
		ErrorPatterns:        []string{"past tense endings"},
		OptimizationStrategy: "Shadow native dialogue daily.",
	}
}

func newTestOrchestrator(t *testing.T, gen report.Generator, store reportstore.Store) (*Orchestrator, *assessment.Machine, *fakeSender, chan struct{}) {
	t.Helper()
	machine := assessment.NewMachine()
	history := transcripts.NewHistory()
	history.Append(transcripts.SpeakerInterviewer, "이름이 뭐예요?")
	history.Append(transcripts.SpeakerUser, "민수예요")
	sender := &fakeSender{}
	completed := make(chan struct{}, 1)
	o := NewOrchestrator(OrchestratorConfig{
		SessionID:  "sess-1",
		Machine:    machine,
		Sender:     sender,
		History:    history,
		Generator:  gen,
		Store:      store,
		Prompts:    DefaultPrompts(),
		OnComplete: func() { completed <- struct{}{} },
	})
	o.ackTimeout = 50 * time.Millisecond
	o.summaryTimeout = 50 * time.Millisecond
	o.goodbyeTimeout = 50 * time.Millisecond
	o.drainMargin = 5 * time.Millisecond
	o.minDrain = 5 * time.Millisecond
	o.maxDrain = 50 * time.Millisecond
	o.goodbyeDrain = 5 * time.Millisecond
	return o, machine, sender, completed
}

func TestAckDoneGeneratesReportAndSendsSummary(t *testing.T) {
	gen := &fakeGenerator{report: sampleReport()}
	store := reportstore.NewInMemoryStore()
	o, machine, sender, _ := newTestOrchestrator(t, gen, store)

	machine.Trigger("B1 ceiling")
	machine.RegisterResponse("r1", assessment.RoleAck)
	machine.OnAudioChunk("r1")
	machine.OnAudioTranscriptDone("r1")
	machine.OnResponseDone("r1")

	o.dispatchResponseDone(context.Background(), "r1")

	if machine.Phase() != assessment.PhaseReportGenerating {
		t.Fatalf("phase = %s, want %s", machine.Phase(), assessment.PhaseReportGenerating)
	}
	if machine.VerbalSummary() == "" {
		t.Fatal("verbal summary should be set")
	}
	if sender.responseCount() != 1 {
		t.Fatalf("responses sent = %d, want 1 (summary)", sender.responseCount())
	}
	if !strings.Contains(sender.responses[0], machine.VerbalSummary()) {
		t.Fatal("summary response.create should carry the verbal summary text")
	}
	if sender.hints[0] != "English" {
		t.Fatalf("language hint = %q, want English", sender.hints[0])
	}

	recs, err := store.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 1 || recs[0].Report.ProficiencyLevel != "B1" {
		t.Fatalf("persisted records = %+v, want one B1 report", recs)
	}
	if recs[0].TriggerReason != "B1 ceiling" {
		t.Fatalf("persisted reason = %q", recs[0].TriggerReason)
	}
}

func TestReportFailureSpeaksApologyAndSticks(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	o, machine, sender, _ := newTestOrchestrator(t, gen, nil)

	machine.Trigger("ceiling")
	machine.RegisterResponse("r1", assessment.RoleAck)
	machine.OnAudioTranscriptDone("r1")

	o.dispatchResponseDone(context.Background(), "r1")

	// Stuck in report_generating: no retry, manual restart required.
	if machine.Phase() != assessment.PhaseReportGenerating {
		t.Fatalf("phase = %s, want %s", machine.Phase(), assessment.PhaseReportGenerating)
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.calls)
	}
	if sender.responseCount() != 1 || !strings.Contains(sender.responses[0], "apologize") {
		t.Fatalf("expected one apology response, got %v", sender.responses)
	}
}

type retryOnce struct{}

func (retryOnce) ShouldRetry(attempt int, _ error) bool { return attempt < 2 }

func TestRetryPolicyHook(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("flaky")}
	o, machine, _, _ := newTestOrchestrator(t, gen, nil)
	o.retry = retryOnce{}

	machine.Trigger("ceiling")
	machine.RegisterResponse("r1", assessment.RoleAck)
	machine.OnAudioTranscriptDone("r1")

	o.dispatchResponseDone(context.Background(), "r1")

	if gen.calls != 2 {
		t.Fatalf("generator calls = %d, want 2 with one retry", gen.calls)
	}
}

func TestSummaryDoneSendsGoodbyeAfterDrain(t *testing.T) {
	gen := &fakeGenerator{report: sampleReport()}
	o, machine, sender, _ := newTestOrchestrator(t, gen, nil)

	machine.Trigger("ceiling")
	machine.RegisterResponse("r1", assessment.RoleAck)
	machine.OnAudioTranscriptDone("r1")
	machine.StartReportGeneration()
	machine.SetVerbalSummary("You are at B1 level.")
	machine.RegisterResponse("r2", assessment.RoleSummary)
	machine.OnAudioChunk("r2")
	machine.OnAudioBytes("r2", 4800)
	machine.OnAudioTranscriptDone("r2")

	o.dispatchResponseDone(context.Background(), "r2")

	if sender.responseCount() != 1 {
		t.Fatalf("responses sent = %d, want 1 (goodbye)", sender.responseCount())
	}
	if !strings.Contains(sender.responses[0], "Goodbye!") {
		t.Fatalf("goodbye response = %q", sender.responses[0])
	}
}

func TestSummaryDoneSkipsGoodbyeWhenAudioIncomplete(t *testing.T) {
	gen := &fakeGenerator{report: sampleReport()}
	o, machine, sender, _ := newTestOrchestrator(t, gen, nil)

	machine.Trigger("ceiling")
	machine.RegisterResponse("r1", assessment.RoleAck)
	machine.OnAudioTranscriptDone("r1")
	machine.StartReportGeneration()
	machine.SetVerbalSummary("You are at B1 level.")
	machine.RegisterResponse("r2", assessment.RoleSummary)
	machine.OnAudioChunk("r2")
	// Audio never completes; the wait times out and can_send_goodbye stays
	// false.
	o.dispatchResponseDone(context.Background(), "r2")

	if sender.responseCount() != 0 {
		t.Fatalf("responses sent = %d, want 0", sender.responseCount())
	}
}

func TestGoodbyeDoneCompletesAndSignals(t *testing.T) {
	gen := &fakeGenerator{report: sampleReport()}
	o, machine, _, completed := newTestOrchestrator(t, gen, nil)

	machine.Trigger("ceiling")
	machine.RegisterResponse("r1", assessment.RoleAck)
	machine.OnAudioTranscriptDone("r1")
	machine.StartReportGeneration()
	machine.SetVerbalSummary("summary")
	machine.RegisterResponse("r2", assessment.RoleSummary)
	machine.OnAudioTranscriptDone("r2")
	machine.RegisterResponse("r3", assessment.RoleGoodbye)
	machine.OnAudioChunk("r3")
	machine.OnAudioTranscriptDone("r3")

	o.dispatchResponseDone(context.Background(), "r3")

	if !machine.IsComplete() {
		t.Fatalf("phase = %s, want %s", machine.Phase(), assessment.PhaseComplete)
	}
	select {
	case <-completed:
	default:
		t.Fatal("session completion should have been signalled")
	}
}

func TestEarlyExitPreemptsDelivery(t *testing.T) {
	gen := &fakeGenerator{report: sampleReport()}
	o, machine, _, completed := newTestOrchestrator(t, gen, nil)

	machine.Trigger("ceiling")
	machine.RegisterResponse("r1", assessment.RoleAck)

	o.EarlyExit()

	if !machine.IsComplete() {
		t.Fatalf("phase = %s, want %s", machine.Phase(), assessment.PhaseComplete)
	}
	select {
	case <-completed:
	default:
		t.Fatal("early exit should signal completion")
	}

	// A second call is a no-op once complete.
	o.EarlyExit()
	select {
	case <-completed:
		t.Fatal("early exit signalled twice")
	default:
	}
}

func TestDrainDelayPrefersByteDerivedDuration(t *testing.T) {
	gen := &fakeGenerator{report: sampleReport()}
	o, machine, _, _ := newTestOrchestrator(t, gen, nil)
	o.drainMargin = 3 * time.Second
	o.minDrain = 5 * time.Second
	o.maxDrain = 30 * time.Second

	machine.Trigger("ceiling")
	machine.RegisterResponse("r1", assessment.RoleAck)
	machine.OnAudioTranscriptDone("r1")
	machine.StartReportGeneration()
	machine.SetVerbalSummary("word " + strings.Repeat("word ", 24))
	machine.RegisterResponse("r2", assessment.RoleSummary)
	machine.OnAudioBytes("r2", 96000)

	// 96000 bytes is 2s of audio, plus the 3s margin.
	if got := o.drainDelay("r2"); got != 5*time.Second {
		t.Fatalf("drainDelay = %s, want 5s", got)
	}

	// Unknown tracker falls back to word count: 25 words / 2.5 wps + 3s.
	if got := o.drainDelay("unknown"); got != 13*time.Second {
		t.Fatalf("fallback drainDelay = %s, want 13s", got)
	}
}

func TestDrainDelayClampsFallback(t *testing.T) {
	gen := &fakeGenerator{report: sampleReport()}
	o, machine, _, _ := newTestOrchestrator(t, gen, nil)
	o.drainMargin = 3 * time.Second
	o.minDrain = 5 * time.Second
	o.maxDrain = 30 * time.Second

	machine.SetVerbalSummary("short")
	if got := o.drainDelay("unknown"); got != 5*time.Second {
		t.Fatalf("short summary drainDelay = %s, want clamped 5s", got)
	}

	machine.SetVerbalSummary(strings.TrimSpace(strings.Repeat("word ", 200)))
	if got := o.drainDelay("unknown"); got != 30*time.Second {
		t.Fatalf("long summary drainDelay = %s, want clamped 30s", got)
	}
}

func TestWaitHonoursGracePeriod(t *testing.T) {
	gen := &fakeGenerator{report: sampleReport()}
	o, _, _, _ := newTestOrchestrator(t, gen, nil)

	o.wg.Add(1)
	release := make(chan struct{})
	go func() {
		defer o.wg.Done()
		<-release
	}()

	if o.Wait(20 * time.Millisecond) {
		t.Fatal("Wait should time out while task is running")
	}
	close(release)
	if !o.Wait(time.Second) {
		t.Fatal("Wait should succeed once task finished")
	}
}
