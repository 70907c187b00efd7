package report

import "context"

// DomainAnalysis scores one linguistic domain (fluency, grammar, lexical,
// phonology, coherence) with a direct transcript quote as evidence.
type DomainAnalysis struct {
	Domain      string `json:"domain"`
	Rating      int    `json:"rating"`
	Observation string `json:"observation"`
	Evidence    string `json:"evidence"`
}

// Report is the structured proficiency assessment produced for one interview.
type Report struct {
	ProficiencyLevel     string           `json:"proficiency_level"`
	CeilingPhase         string           `json:"ceiling_phase"`
	CeilingAnalysis      string           `json:"ceiling_analysis"`
	DomainAnalyses       []DomainAnalysis `json:"domain_analyses"`
	StartingModule       string           `json:"starting_module"`
	ErrorPatterns        []string         `json:"logic_errors_to_debug"`
	OptimizationStrategy string           `json:"optimization_strategy"`
}

// Generator turns an interview transcript into a structured report. The call
// is slow (a remote language model round trip) and may fail; callers own the
// timeout via ctx.
type Generator interface {
	Generate(ctx context.Context, transcript string) (Report, error)
}
