// Package generator drafts routines from free-form prompts with a chat model.
package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-5-mini"

const systemPrompt = `You plan daily routines. Reply with one JSON object and nothing else:
{
  "title": "short routine name",
  "theme": "optional theme",
  "detailLevel": "low" | "medium" | "high",
  "tasks": [
    {
      "title": "task name",
      "description": "optional details",
      "type": "routine" | "one_time" | "event" | "habit",
      "startTime": "HH:MM:SS",
      "durationMinutes": 30,
      "priority": "low" | "medium" | "high"
    }
  ]
}
Keep tasks in the order they happen during the day. Omit fields you cannot infer.`

// OpenAI asks a chat completion model for a routine document.
type OpenAI struct {
	client openai.Client
	model  string
	log    *zap.Logger
}

// NewOpenAI builds a generator. opts are applied after the API key, so a
// base URL or retry policy can be overridden.
func NewOpenAI(apiKey, model string, log *zap.Logger, opts ...option.RequestOption) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAI{client: openai.NewClient(opts...), model: model, log: log}
}

// Generate returns the raw reply for prompt. The reply is not validated.
func (g *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices")
	}
	g.log.Debug("routine generated",
		zap.String("model", resp.Model),
		zap.Int64("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}
