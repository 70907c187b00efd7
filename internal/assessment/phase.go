package assessment

// Phase identifies where the delivery sequence currently is. Phases only ever
// advance forward; the single exception is the early-exit jump to
// PhaseComplete when the user acknowledges before the sequence finishes.
type Phase string

const (
	PhaseInactive         Phase = "inactive"
	PhaseTriggered        Phase = "triggered"
	PhaseAckGenerating    Phase = "ack_generating"
	PhaseAckSpeaking      Phase = "ack_speaking"
	PhaseReportGenerating Phase = "report_generating"
	PhaseSummarySending   Phase = "summary_sending"
	PhaseSummarySpeaking  Phase = "summary_speaking"
	PhaseGoodbyeSending   Phase = "goodbye_sending"
	PhaseGoodbyeSpeaking  Phase = "goodbye_speaking"
	PhaseComplete         Phase = "complete"
)

// ResponseRole names which delivery utterance a newly created remote response
// carries. Used as the registration hint when a response id arrives.
type ResponseRole string

const (
	RoleAck     ResponseRole = "ack"
	RoleSummary ResponseRole = "summary"
	RoleGoodbye ResponseRole = "goodbye"
)
