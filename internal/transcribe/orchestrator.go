// Package transcribe turns one long recording into one ordered transcript by
// splitting it into chunks and transcribing them one after another.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mimi/internal/apperr"
	"mimi/internal/deadline"
	"mimi/internal/media"
	"mimi/internal/metrics"
	"mimi/internal/stt"
)

const stage = "transcribing"

// Splitter cuts a recording into chunks inside a scratch directory it owns.
type Splitter interface {
	Split(ctx context.Context, inputPath string, segmentSeconds int) (*media.Result, error)
}

// Options bounds one transcription run.
type Options struct {
	SegmentSeconds    int
	ProcessTimeout    time.Duration // the whole run
	SegmentTimeout    time.Duration // one speech-to-text call
	TranscoderTimeout time.Duration // the ffmpeg invocation
}

// SegmentError identifies the chunk that stopped a run.
type SegmentError struct {
	Index int // zero-based
	Total int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d/%d: %v", e.Index+1, e.Total, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

// Orchestrator runs split, per-chunk transcription and reassembly.
type Orchestrator struct {
	splitter Splitter
	provider stt.Provider
	opts     Options
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates an orchestrator. m may be nil.
func New(splitter Splitter, provider stt.Provider, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Orchestrator {
	if opts.SegmentSeconds <= 0 {
		opts.SegmentSeconds = media.DefaultSegmentSeconds
	}
	return &Orchestrator{
		splitter: splitter,
		provider: provider,
		opts:     opts,
		metrics:  m,
		logger:   logger,
	}
}

// Provider returns the speech-to-text provider name.
func (o *Orchestrator) Provider() string {
	return o.provider.Name()
}

// Transcribe returns the full transcript of inputPath. language is a
// normalized hint or "". Scratch files are gone by the time it returns,
// including when the aggregate budget expires mid-call.
func (o *Orchestrator) Transcribe(ctx context.Context, inputPath, language string) (string, error) {
	ws := &workspace{}
	defer func() {
		if err := ws.release(); err != nil {
			o.metrics.RecordCleanupError("scratch")
			o.logger.Warn().Err(err).Msg("Failed to clean segment workspace")
		}
	}()

	return deadline.Run(ctx, deadline.Budget{Label: "transcription", Max: o.opts.ProcessTimeout},
		func(ctx context.Context) (string, error) {
			return o.run(ctx, ws, inputPath, language)
		})
}

func (o *Orchestrator) run(ctx context.Context, ws *workspace, inputPath, language string) (string, error) {
	split, err := deadline.Run(ctx, deadline.Budget{Label: "segmentation", Max: o.opts.TranscoderTimeout},
		func(ctx context.Context) (*media.Result, error) {
			res, err := o.splitter.Split(ctx, inputPath, o.opts.SegmentSeconds)
			if err != nil {
				return nil, err
			}
			if !ws.attach(res) {
				// the caller already gave up on this run
				_ = res.Cleanup()
				return nil, errors.New("segment workspace released before segmentation finished")
			}
			return res, nil
		})
	if err != nil {
		return "", err
	}

	if len(split.Chunks) == 0 {
		o.logger.Info().Msg("Segmenter produced no chunks, transcribing source file directly")
		text, err := o.transcribeOne(ctx, inputPath, language, "transcription", "source")
		if err != nil {
			return "", apperr.New(apperr.KindTranscription, stage, "source transcription failed", err)
		}
		return strings.TrimSpace(text), nil
	}

	total := len(split.Chunks)
	o.logger.Info().Int("segments", total).Msg("Transcribing segments sequentially")

	var b strings.Builder
	for i, chunk := range split.Chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		label := fmt.Sprintf("transcription part %d/%d", i+1, total)
		text, err := o.transcribeOne(ctx, chunk.Path, language, label, media.ChunkLabel(chunk))
		if err != nil {
			return "", apperr.New(apperr.KindTranscription, stage,
				fmt.Sprintf("segment %d/%d failed", i+1, total),
				&SegmentError{Index: i, Total: total, Err: err})
		}

		if total > 1 {
			fmt.Fprintf(&b, "\n\n----- [ส่วนที่ %d/%d] -----\n", i+1, total)
		}
		b.WriteString(text)
	}

	return strings.TrimSpace(b.String()), nil
}

func (o *Orchestrator) transcribeOne(ctx context.Context, path, language, label, name string) (string, error) {
	start := time.Now()
	res, err := deadline.Run(ctx, deadline.Budget{Label: label, Max: o.opts.SegmentTimeout},
		func(ctx context.Context) (*stt.Result, error) {
			return o.provider.Transcribe(ctx, path, language)
		})
	elapsed := time.Since(start)

	o.metrics.RecordSegment(o.provider.Name(), err, errorType(err), elapsed.Seconds())
	if err != nil {
		o.logger.Warn().Err(err).Str("segment", name).Dur("elapsed", elapsed).Msg("Segment transcription failed")
		return "", err
	}

	text := ""
	if res != nil {
		text = res.Transcript
	}
	o.logger.Debug().Str("segment", name).Int("length", len(text)).Dur("elapsed", elapsed).Msg("Segment transcribed")
	return text, nil
}

func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case apperr.KindOf(err) == apperr.KindTimeout:
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "provider"
	}
}
