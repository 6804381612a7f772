package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFPTURL is the FPT.AI ASR endpoint used when none is configured
const DefaultFPTURL = "https://api.fpt.ai/hmi/asr/v1"

// FPTProvider implements STT using FPT.AI Speech-to-Text API.
// FPT.AI only recognises Vietnamese, so the language hint is ignored.
type FPTProvider struct {
	apiKey     string
	url        string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewFPTProvider creates a new FPT STT provider
func NewFPTProvider(apiKey, url string, logger zerolog.Logger) *FPTProvider {
	if url == "" {
		url = DefaultFPTURL
	}
	return &FPTProvider{
		apiKey:     apiKey,
		url:        url,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		logger:     logger.With().Str("provider", "fpt").Logger(),
	}
}

// Name returns the provider name
func (p *FPTProvider) Name() string {
	return "fpt"
}

// FPTSTTResponse represents FPT.AI STT API response
type FPTSTTResponse struct {
	Hypotheses []struct {
		Utterance  string  `json:"utterance"`
		Confidence float64 `json:"confidence"`
	} `json:"hypotheses"`
	ErrorCode int    `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Transcribe sends audio file to FPT.AI STT API and returns transcript
func (p *FPTProvider) Transcribe(ctx context.Context, audioPath, _ string) (*Result, error) {
	startTime := time.Now()

	audioBytes, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	if len(audioBytes) == 0 {
		return nil, fmt.Errorf("audio file %s is empty", filepath.Base(audioPath))
	}

	p.logger.Debug().
		Str("file", filepath.Base(audioPath)).
		Int("bytes", len(audioBytes)).
		Msg("Processing audio file")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(audioBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("api-key", p.apiKey)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to FPT.AI: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn().Int("status", resp.StatusCode).Str("body", preview(body)).Msg("API error")
		return &Result{
			Provider:    p.Name(),
			RawResponse: string(body),
		}, fmt.Errorf("FPT.AI API returned status %d: %s", resp.StatusCode, preview(body))
	}

	var sttResp FPTSTTResponse
	if err := json.Unmarshal(body, &sttResp); err != nil {
		return &Result{
			Provider:    p.Name(),
			RawResponse: string(body),
		}, fmt.Errorf("failed to parse FPT.AI response: %w", err)
	}

	if sttResp.ErrorCode != 0 {
		return &Result{
			Provider:    p.Name(),
			RawResponse: string(body),
		}, fmt.Errorf("FPT.AI API error %d: %s", sttResp.ErrorCode, sttResp.Message)
	}

	// A silent segment yields no hypotheses; that is an empty transcript, not a failure.
	if len(sttResp.Hypotheses) == 0 {
		p.logger.Debug().Msg("No hypotheses returned")
		return &Result{
			Provider:    p.Name(),
			RawResponse: string(body),
		}, nil
	}

	hyp := sttResp.Hypotheses[0]
	transcript := strings.TrimSpace(hyp.Utterance)

	p.logger.Debug().
		Float64("confidence", hyp.Confidence).
		Int("length", len(transcript)).
		Dur("duration", time.Since(startTime)).
		Msg("Transcription successful")

	return &Result{
		Transcript:  transcript,
		Confidence:  hyp.Confidence,
		Provider:    p.Name(),
		RawResponse: string(body),
	}, nil
}

// preview trims a response body for logs and error messages.
func preview(body []byte) string {
	r := []rune(string(body))
	if len(r) > 500 {
		return string(r[:500]) + "..."
	}
	return string(r)
}
