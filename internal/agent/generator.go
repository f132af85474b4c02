package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/payme/payme/internal/config"
	"github.com/payme/payme/internal/observability"
	"github.com/payme/payme/internal/schema"
)

// Generator produces one SQL candidate per call. Implementations never
// validate; that is the job of the later pipeline stages.
type Generator interface {
	Generate(ctx context.Context, question string, sc schema.Context, feedback string) (GeneratedCandidate, error)
}

// OpenAIGenerator turns questions into candidates through a chat
// completion with a strict JSON contract.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

func NewOpenAIGenerator(cfg config.ModelConfig) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("generator api key is required")
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
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, question string, sc schema.Context, feedback string) (GeneratedCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: generatorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildGeneratorPrompt(question, sc, feedback)},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	observability.ObserveModelLatency("generator", time.Since(start))
	if err != nil {
		return GeneratedCandidate{}, fmt.Errorf("generate candidate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return GeneratedCandidate{}, fmt.Errorf("generator returned no choices")
	}

	candidate, err := parseGeneratedCandidate(resp.Choices[0].Message.Content)
	if err != nil {
		return GeneratedCandidate{}, err
	}
	return candidate, nil
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func parseGeneratedCandidate(content string) (GeneratedCandidate, error) {
	raw := jsonObjectPattern.FindString(content)
	if raw == "" {
		return GeneratedCandidate{}, fmt.Errorf("generator response contains no JSON object")
	}

	var parsed struct {
		SQL         string `json:"sql"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return GeneratedCandidate{}, fmt.Errorf("decode generator response: %w", err)
	}
	sqlText := strings.TrimSpace(parsed.SQL)
	if sqlText == "" {
		return GeneratedCandidate{}, fmt.Errorf("generator response missing sql field")
	}
	explanation := strings.TrimSpace(parsed.Explanation)
	if explanation == "" {
		explanation = "generated SQL"
	}
	return GeneratedCandidate{
		SQL:         sqlText,
		Explanation: explanation,
		Complexity:  EstimateComplexity(sqlText),
	}, nil
}
