package stt

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"mimi/internal/config"
)

// NewProvider creates the configured STT provider. Each call builds its own
// HTTP client; nothing is shared process-wide.
func NewProvider(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Provider, error) {
	logger = logger.With().Str("component", "stt").Logger()

	switch cfg.STT.Provider {
	case "", "openai":
		logger.Info().Str("model", cfg.STT.Model).Msg("Creating OpenAI STT provider")
		return NewOpenAIProvider(OpenAIOptions{
			APIKey:  cfg.OpenAI.APIKey,
			OrgID:   cfg.OpenAI.OrgID,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.STT.Model,
		}, logger), nil
	case "fpt":
		if cfg.STT.FPTApiKey == "" {
			return nil, fmt.Errorf("FPT_AI_API_KEY environment variable is not set")
		}
		logger.Info().Str("url", cfg.STT.FPTSTTURL).Msg("Creating FPT STT provider")
		return NewFPTProvider(cfg.STT.FPTApiKey, cfg.STT.FPTSTTURL, logger), nil
	case "google":
		if cfg.Media.SegmentSeconds > config.GoogleSyncLimitSeconds {
			return nil, fmt.Errorf("google synchronous recognition accepts at most %ds of audio, SEGMENT_SECONDS is %d",
				config.GoogleSyncLimitSeconds, cfg.Media.SegmentSeconds)
		}
		return NewGoogleProvider(ctx, cfg.STT.GoogleProjectID, cfg.STT.GoogleKeyData, logger)
	default:
		return nil, fmt.Errorf("unsupported STT provider: %s. Supported: openai, fpt, google", cfg.STT.Provider)
	}
}
