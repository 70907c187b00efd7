package assessment

import (
	"context"
	"log"
	"sync"
	"time"
)

// Machine coordinates the assessment delivery sequence for one interview
// session. It is mutated from the session event loop and from the delivery
// goroutine, so all state is guarded by a mutex.
//
// Invalid transition attempts are expected conditions, reported through
// boolean returns, never through errors. Events that reference an unknown
// response id are ignored: leftover events from ordinary conversation
// responses routinely arrive after the assessment has been triggered.
type Machine struct {
	mu               sync.Mutex
	phase            Phase
	trackers         map[string]*ResponseTracker
	activeResponseID string
	triggerReason    string
	verbalSummary    string
	observer         func(Phase)
}

func NewMachine() *Machine {
	return &Machine{
		phase:    PhaseInactive,
		trackers: make(map[string]*ResponseTracker),
	}
}

// SetPhaseObserver installs a callback invoked on every phase change. The
// callback runs with the machine lock held and must not call back into the
// machine.
func (m *Machine) SetPhaseObserver(fn func(Phase)) {
	m.mu.Lock()
	m.observer = fn
	m.mu.Unlock()
}

func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Machine) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase != PhaseInactive && m.phase != PhaseComplete
}

func (m *Machine) IsComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase == PhaseComplete
}

func (m *Machine) TriggerReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggerReason
}

func (m *Machine) ActiveResponseID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeResponseID
}

// SetVerbalSummary stores the generated spoken summary once the report is
// available. The router refuses to register a summary response before this
// is set.
func (m *Machine) SetVerbalSummary(summary string) {
	m.mu.Lock()
	m.verbalSummary = summary
	m.mu.Unlock()
}

func (m *Machine) VerbalSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verbalSummary
}

// Tracker returns the tracker for a response id, if one was registered.
func (m *Machine) Tracker(responseID string) (*ResponseTracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[responseID]
	return t, ok
}

// Trigger starts an assessment. It succeeds only from PhaseInactive; a second
// call is duplicate-trigger protection and returns false with state unchanged.
func (m *Machine) Trigger(reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseInactive {
		log.Printf("assessment: trigger ignored, already in phase %s", m.phase)
		return false
	}
	m.triggerReason = reason
	m.setPhaseLocked(PhaseTriggered)
	return true
}

// RegisterResponse creates a tracker for a newly issued response id and
// advances the phase according to the role hint. Registering from a phase
// where that role is not legal is a caller bug: the call is a no-op and
// returns false rather than corrupting state.
func (m *Machine) RegisterResponse(responseID string, role ResponseRole) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next Phase
	switch role {
	case RoleAck:
		if m.phase != PhaseTriggered {
			log.Printf("assessment: unexpected ack response in phase %s (id %s)", m.phase, idSuffix(responseID))
			return false
		}
		next = PhaseAckGenerating
	case RoleSummary:
		if m.phase != PhaseReportGenerating {
			log.Printf("assessment: unexpected summary response in phase %s (id %s)", m.phase, idSuffix(responseID))
			return false
		}
		next = PhaseSummarySending
	case RoleGoodbye:
		if m.phase != PhaseSummarySending && m.phase != PhaseSummarySpeaking {
			log.Printf("assessment: unexpected goodbye response in phase %s (id %s)", m.phase, idSuffix(responseID))
			return false
		}
		next = PhaseGoodbyeSending
	default:
		log.Printf("assessment: unknown response role %q (id %s)", role, idSuffix(responseID))
		return false
	}

	m.trackers[responseID] = newResponseTracker(role)
	m.activeResponseID = responseID
	m.setPhaseLocked(next)
	return true
}

// OnAudioChunk marks audio as started for the response. The first chunk for
// the active response moves the matching sending/generating phase to its
// speaking phase.
func (m *Machine) OnAudioChunk(responseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[responseID]
	if !ok {
		return
	}
	t.MarkAudioStarted()
	if responseID != m.activeResponseID {
		return
	}
	switch m.phase {
	case PhaseAckGenerating:
		m.setPhaseLocked(PhaseAckSpeaking)
	case PhaseSummarySending:
		m.setPhaseLocked(PhaseSummarySpeaking)
	case PhaseGoodbyeSending:
		m.setPhaseLocked(PhaseGoodbyeSpeaking)
	}
}

// OnAudioBytes accumulates payload size for duration estimation.
func (m *Machine) OnAudioBytes(responseID string, n int) {
	m.mu.Lock()
	t, ok := m.trackers[responseID]
	m.mu.Unlock()
	if !ok {
		return
	}
	t.AddAudioBytes(n)
}

// OnAudioTranscriptDone is the authoritative signal that speech for the
// response finished rendering.
func (m *Machine) OnAudioTranscriptDone(responseID string) {
	m.mu.Lock()
	t, ok := m.trackers[responseID]
	m.mu.Unlock()
	if !ok {
		log.Printf("assessment: audio done for unknown response %s", idSuffix(responseID))
		return
	}
	t.MarkAudioComplete()
	log.Printf("assessment: audio complete for %s response (id %s)", t.Role(), idSuffix(responseID))
}

// OnResponseDone marks the remote response object finished. This does not
// advance the phase and does not imply audio completion.
func (m *Machine) OnResponseDone(responseID string) {
	m.mu.Lock()
	t, ok := m.trackers[responseID]
	m.mu.Unlock()
	if !ok {
		return
	}
	t.MarkResponseComplete()
	log.Printf("assessment: response complete for %s response (id %s)", t.Role(), idSuffix(responseID))
}

func (m *Machine) CanProceedToReportGeneration() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase == PhaseAckGenerating || m.phase == PhaseAckSpeaking
}

// StartReportGeneration moves to PhaseReportGenerating if the acknowledgment
// is underway; otherwise it is a no-op returning false.
func (m *Machine) StartReportGeneration() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseAckGenerating && m.phase != PhaseAckSpeaking {
		log.Printf("assessment: cannot start report generation in phase %s", m.phase)
		return false
	}
	m.setPhaseLocked(PhaseReportGenerating)
	return true
}

// CanSendSummary reports whether the report phase is active and the
// acknowledgment audio has fully played out.
func (m *Machine) CanSendSummary() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseReportGenerating {
		return false
	}
	t, ok := m.trackers[m.activeResponseID]
	return ok && t.AudioComplete()
}

// CanSendGoodbye reports whether the summary is underway and its audio has
// fully played out.
func (m *Machine) CanSendGoodbye() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseSummarySending && m.phase != PhaseSummarySpeaking {
		return false
	}
	t, ok := m.trackers[m.activeResponseID]
	return ok && t.AudioComplete()
}

// MarkComplete ends delivery unconditionally. Used on the happy path after
// the goodbye and for early exit when the user acknowledges mid-sequence.
func (m *Machine) MarkComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setPhaseLocked(PhaseComplete)
}

// WaitForAudioComplete blocks until the tracker's audio is complete, the
// timeout elapses, or ctx is cancelled. Unknown response ids return false
// without waiting.
func (m *Machine) WaitForAudioComplete(ctx context.Context, responseID string, timeout time.Duration) bool {
	m.mu.Lock()
	t, ok := m.trackers[responseID]
	m.mu.Unlock()
	if !ok {
		log.Printf("assessment: cannot wait for unknown response %s", idSuffix(responseID))
		return false
	}
	if t.AudioComplete() {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.completionSignal():
		return true
	case <-timer.C:
		log.Printf("assessment: timeout waiting for %s audio (id %s)", t.Role(), idSuffix(responseID))
		return false
	case <-ctx.Done():
		return false
	}
}

func (m *Machine) setPhaseLocked(next Phase) {
	m.phase = next
	log.Printf("assessment: phase %s", next)
	if m.observer != nil {
		m.observer(next)
	}
}

// idSuffix keeps response ids readable in logs.
func idSuffix(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
