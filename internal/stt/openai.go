package stt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements STT using the OpenAI audio transcription endpoint
type OpenAIProvider struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// OpenAIOptions configures the OpenAI transcription client
type OpenAIOptions struct {
	APIKey  string
	OrgID   string
	BaseURL string
	Model   string
}

// NewOpenAIProvider creates a new OpenAI STT provider with its own client
func NewOpenAIProvider(opts OpenAIOptions, logger zerolog.Logger) *OpenAIProvider {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.OrgID != "" {
		cfg.OrgID = opts.OrgID
	}
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	model := opts.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.With().Str("provider", "openai").Logger(),
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Model returns the transcription model tag stored on jobs
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Transcribe uploads one audio file and returns its transcript
func (p *OpenAIProvider) Transcribe(ctx context.Context, audioPath, language string) (*Result, error) {
	startTime := time.Now()

	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat audio file: %w", err)
	}
	p.logger.Debug().
		Str("file", filepath.Base(audioPath)).
		Int64("bytes", info.Size()).
		Str("language", language).
		Msg("Uploading audio for transcription")

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.model,
		FilePath: audioPath,
		Language: language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return &Result{Provider: p.Name()}, fmt.Errorf("OpenAI transcription error: %w", err)
	}

	transcript := strings.TrimSpace(resp.Text)
	p.logger.Debug().
		Int("length", len(transcript)).
		Dur("duration", time.Since(startTime)).
		Msg("Transcription successful")

	return &Result{
		Transcript: transcript,
		Provider:   p.Name(),
	}, nil
}
