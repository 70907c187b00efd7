package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const examinerSystemPrompt = `You are a senior language examiner specialized in semi-structured oral interviews. Analyze the transcript to locate the linguistic ceiling: the point where the student stopped being comfortable.

Rules:
- Never make a claim without a direct transcript quote as evidence.
- Prioritize global errors that break communication over local slips.
- Rate each domain (Fluency, Grammar, Lexical, Phonology, Coherence) 1-5.

Respond with a single JSON object and nothing else, using exactly these keys:
proficiency_level, ceiling_phase, ceiling_analysis, domain_analyses (array of {domain, rating, observation, evidence}), starting_module, logic_errors_to_debug (array of strings, top 2), optimization_strategy.`

// ClientConfig holds the chat-completions endpoint settings for report
// generation.
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client generates structured assessment reports over a chat-completions
// style HTTP API.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

func NewClient(cfg ClientConfig) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Generate(ctx context.Context, transcript string) (Report, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Report{}, fmt.Errorf("report api key missing")
	}
	if strings.TrimSpace(transcript) == "" {
		return Report{}, fmt.Errorf("empty transcript")
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: examinerSystemPrompt},
			{Role: "user", Content: "Analyze this interview transcript and provide the assessment:\n\n" + transcript},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   2000,
	})
	if err != nil {
		return Report{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return Report{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Report{}, fmt.Errorf("report backend status %d: %s", res.StatusCode, string(body))
	}

	var cr chatResponse
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return Report{}, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Report{}, fmt.Errorf("report backend returned no choices")
	}

	return parseReportJSON(cr.Choices[0].Message.Content)
}

// parseReportJSON extracts the report object from the model output. Models
// occasionally wrap JSON in code fences; strip them before decoding.
func parseReportJSON(content string) (Report, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	var r Report
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return Report{}, fmt.Errorf("parse report json: %w", err)
	}
	if strings.TrimSpace(r.ProficiencyLevel) == "" {
		return Report{}, fmt.Errorf("report missing proficiency level")
	}
	return r, nil
}
