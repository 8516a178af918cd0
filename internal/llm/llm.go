// Package llm turns text segments into validated multiple-choice questions
// via an OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quizzy-app/quizzy/internal/llm/prompts"
	"github.com/quizzy-app/quizzy/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// ErrMalformed marks model output that could not be located, decoded, or
// validated, as opposed to transport failures. Callers use it to classify
// skipped chunks.
var ErrMalformed = errors.New("malformed model output")

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

// Synthesize asks the model for n questions at the given difficulty from one
// text segment and returns them fully validated. The call is all-or-nothing:
// a response that cannot be located, decoded, or that contains any invalid
// item is an error, so callers can treat the whole segment as unusable.
func (c *Client) Synthesize(ctx context.Context, segment string, n int, difficulty model.Difficulty) ([]model.Question, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompts.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompts.BuildGeneration(segment, n, difficulty)},
		},
		Temperature: 0.7,
		MaxTokens:   1024,
		TopP:        1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	return parseQuestions(raw)
}

// parseQuestions locates the outermost JSON array in raw model output,
// decodes it, and validates every item.
func parseQuestions(raw string) ([]model.Question, error) {
	arr, err := extractArray(raw)
	if err != nil {
		return nil, err
	}

	var questions []model.Question
	if err := json.Unmarshal([]byte(arr), &questions); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformed, err)
	}

	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", ErrMalformed, i, err)
		}
	}
	return questions, nil
}

func extractArray(raw string) (string, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON array delimiters in response", ErrMalformed)
	}
	return raw[start : end+1], nil
}
