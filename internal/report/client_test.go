package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleReportJSON = `{
	"proficiency_level": "B1",
	"ceiling_phase": "Level-up",
	"ceiling_analysis": "Breakdown appeared during narration tasks.",
	"domain_analyses": [
		{"domain": "Fluency", "rating": 4, "observation": "Steady pace.", "evidence": "quote one"},
		{"domain": "Grammar", "rating": 2, "observation": "Tense drift.", "evidence": "quote two"}
	],
	"starting_module": "Intermediate Conversation",
	"logic_errors_to_debug": ["past tense consistency", "particle usage"],
	"optimization_strategy": "Shadowing"
}`

func TestClientGenerateParsesReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "INTERVIEW") {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: sampleReportJSON}}},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o-mini"})
	r, err := c.Generate(context.Background(), "=== INTERVIEW TRANSCRIPT ===\nLearner: hi\n=== END TRANSCRIPT ===")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if r.ProficiencyLevel != "B1" {
		t.Fatalf("ProficiencyLevel = %q, want B1", r.ProficiencyLevel)
	}
	if len(r.DomainAnalyses) != 2 {
		t.Fatalf("len(DomainAnalyses) = %d, want 2", len(r.DomainAnalyses))
	}
}

func TestClientGenerateBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "m"})
	if _, err := c.Generate(context.Background(), "transcript"); err == nil {
		t.Fatalf("Generate() should surface backend errors")
	}
}

func TestParseReportJSONStripsCodeFence(t *testing.T) {
	fenced := "```json\n" + sampleReportJSON + "\n```"
	r, err := parseReportJSON(fenced)
	if err != nil {
		t.Fatalf("parseReportJSON() error = %v", err)
	}
	if r.StartingModule != "Intermediate Conversation" {
		t.Fatalf("StartingModule = %q", r.StartingModule)
	}
}

func TestParseReportJSONRejectsEmptyLevel(t *testing.T) {
	if _, err := parseReportJSON(`{"proficiency_level": ""}`); err == nil {
		t.Fatalf("report without proficiency level should be rejected")
	}
}
