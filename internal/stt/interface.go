package stt

import "context"

// Provider defines the interface for speech-to-text providers
type Provider interface {
	// Transcribe transcribes one audio file. language is a normalized hint
	// ("th", "en-US") or "" to let the provider decide.
	Transcribe(ctx context.Context, audioPath, language string) (*Result, error)

	// Name returns the name of the provider (e.g., "openai", "fpt", "google")
	Name() string
}
