package ai

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"mimi/internal/apperr"
	"mimi/internal/deadline"
)

const stage = "summarizing"

// ChatCompleter is the slice of the OpenAI client the summarizer needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewOpenAIClient builds a dedicated OpenAI client.
func NewOpenAIClient(apiKey, orgID, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if orgID != "" {
		cfg.OrgID = orgID
	}
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

// SummarizerOptions tunes the summary completion.
type SummarizerOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultSummarizerOptions returns the production completion settings.
func DefaultSummarizerOptions() SummarizerOptions {
	return SummarizerOptions{
		Model:       openai.GPT4oMini,
		Temperature: 0.3,
		MaxTokens:   900,
		Timeout:     2 * time.Minute,
	}
}

// Summarizer produces a Markdown meeting summary from a transcript.
type Summarizer struct {
	client ChatCompleter
	opts   SummarizerOptions
	logger zerolog.Logger
}

// NewSummarizer creates a summarizer around client. Zero option fields take
// their defaults.
func NewSummarizer(client ChatCompleter, opts SummarizerOptions, logger zerolog.Logger) *Summarizer {
	def := DefaultSummarizerOptions()
	if opts.Model == "" {
		opts.Model = def.Model
	}
	if opts.Temperature == 0 {
		opts.Temperature = def.Temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Summarizer{client: client, opts: opts, logger: logger}
}

// Summarize runs one bounded chat completion. An empty transcript is still
// sent; the model answers with an empty outline.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	systemPrompt, userPrompt := BuildSummaryPrompt(transcript)

	s.logger.Debug().
		Str("model", s.opts.Model).
		Int("transcriptLength", len(transcript)).
		Msg("Requesting summary")

	resp, err := deadline.Run(ctx, deadline.Budget{Label: "summarization", Max: s.opts.Timeout},
		func(ctx context.Context) (openai.ChatCompletionResponse, error) {
			return s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model: s.opts.Model,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
					{Role: openai.ChatMessageRoleUser, Content: userPrompt},
				},
				Temperature: s.opts.Temperature,
				MaxTokens:   s.opts.MaxTokens,
			})
		})
	if err != nil {
		return "", apperr.New(apperr.KindSummarization, stage, "chat completion failed", err)
	}

	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.KindSummarization, stage, "OpenAI returned no choices", nil)
	}

	summary := stripCodeFence(resp.Choices[0].Message.Content)
	s.logger.Debug().
		Int("promptTokens", resp.Usage.PromptTokens).
		Int("completionTokens", resp.Usage.CompletionTokens).
		Int("summaryLength", len(summary)).
		Msg("Summary received")

	return summary, nil
}

// stripCodeFence unwraps a reply the model put inside a ```markdown block.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") || !strings.HasSuffix(content, "```") || len(content) < 6 {
		return content
	}
	body := strings.TrimSuffix(content, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "```")
	}
	return strings.TrimSpace(body)
}


// Ping sends a minimal completion to confirm the API key and model answer.
// It returns the model's reply, or "ok" when the reply is empty.
func Ping(ctx context.Context, client ChatCompleter, model string, timeout time.Duration) (string, error) {
	if model == "" {
		model = openai.GPT4oMini
	}
	resp, err := deadline.Run(ctx, deadline.Budget{Label: "openai ping", Max: timeout},
		func(ctx context.Context) (openai.ChatCompletionResponse, error) {
			return client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       model,
				Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "ping"}},
				MaxTokens:   5,
				Temperature: 0,
			})
		})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) > 0 {
		if reply := strings.TrimSpace(resp.Choices[0].Message.Content); reply != "" {
			return reply, nil
		}
	}
	return "ok", nil
}
