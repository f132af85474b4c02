package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/payme/payme/internal/config"
	"github.com/payme/payme/internal/observability"
	"github.com/payme/payme/internal/schema"
)

// ApprovalConfidence is the minimum reviewer confidence accepted for
// execution. The reviewer's approved flag is honored only at or above
// this score, regardless of what the model claims.
const ApprovalConfidence = 95

// SuggestedFixFloor marks the bottom of the band in which the reviewer
// may return a corrected statement worth feeding back to the generator.
const SuggestedFixFloor = 80

// SemanticResult is the reviewer's verdict on one candidate.
type SemanticResult struct {
	Approved     bool
	Confidence   int
	Issues       []string
	SuggestedFix string
	Reasoning    string
}

// Reviewer judges whether a candidate is safe and actually answers the
// question. A failed review is a verdict, not an error; errors are
// reserved for transport and decoding failures.
type Reviewer interface {
	Review(ctx context.Context, sqlText, question string, sc schema.Context) (SemanticResult, error)
}

type OpenAIReviewer struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

func NewOpenAIReviewer(cfg config.ModelConfig) (*OpenAIReviewer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("reviewer api key is required")
	}
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5-nano"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &OpenAIReviewer{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
	}, nil
}

func (r *OpenAIReviewer) Review(ctx context.Context, sqlText, question string, sc schema.Context) (SemanticResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: reviewerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildReviewerPrompt(sqlText, question, sc)},
		},
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	observability.ObserveModelLatency("reviewer", time.Since(start))
	if err != nil {
		return SemanticResult{}, fmt.Errorf("review candidate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return SemanticResult{}, fmt.Errorf("reviewer returned no choices")
	}
	return parseSemanticResult(resp.Choices[0].Message.Content)
}

func parseSemanticResult(content string) (SemanticResult, error) {
	raw := jsonObjectPattern.FindString(content)
	if raw == "" {
		return SemanticResult{}, fmt.Errorf("reviewer response contains no JSON object")
	}

	var parsed struct {
		Approved     bool     `json:"approved"`
		Confidence   int      `json:"confidence"`
		Issues       []string `json:"issues"`
		SuggestedFix string   `json:"suggested_fix"`
		Reasoning    string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return SemanticResult{}, fmt.Errorf("decode reviewer response: %w", err)
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 100 {
		parsed.Confidence = 100
	}

	result := SemanticResult{
		// The approved flag alone is never trusted; confidence must
		// clear the threshold too.
		Approved:   parsed.Approved && parsed.Confidence >= ApprovalConfidence,
		Confidence: parsed.Confidence,
		Issues:     parsed.Issues,
		Reasoning:  strings.TrimSpace(parsed.Reasoning),
	}
	if parsed.Confidence >= SuggestedFixFloor && parsed.Confidence < ApprovalConfidence {
		result.SuggestedFix = strings.TrimSpace(parsed.SuggestedFix)
	}
	observability.ObserveReviewConfidence(result.Confidence)
	return result, nil
}
