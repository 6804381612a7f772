// Package media wraps the ffmpeg transcoder used to split recordings into
// speech-recognition friendly chunks.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mimi/internal/apperr"
)

const (
	// DefaultSegmentSeconds is the chunk length used when none is configured.
	DefaultSegmentSeconds = 600
	// SampleRate is the resample target for every chunk.
	SampleRate = 16000

	chunkPattern = "part_%03d.wav"
	stage        = "segmenting"
)

var chunkName = regexp.MustCompile(`^part_(\d{3,})\.wav$`)

// Chunk is one bounded slice of the source recording.
type Chunk struct {
	Path     string
	Index    int
	Duration time.Duration
}

// Result owns the scratch directory and the chunks written into it.
type Result struct {
	Dir    string
	Chunks []Chunk
	Log    CommandLog

	mu        sync.Mutex
	cleaned   bool
	remove    func(string) error
	removeAll func(string) error
}

// Cleanup deletes every chunk and then the scratch directory. It is safe to
// call more than once and from more than one goroutine.
func (r *Result) Cleanup() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cleaned {
		return nil
	}
	r.cleaned = true

	var errs []error
	for _, c := range r.Chunks {
		if err := r.remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove chunk %s: %w", c.Path, err))
		}
	}
	if err := r.removeAll(r.Dir); err != nil {
		errs = append(errs, fmt.Errorf("remove scratch dir %s: %w", r.Dir, err))
	}
	return errors.Join(errs...)
}

// Segmenter invokes ffmpeg once per recording to produce mono 16 kHz WAV chunks.
type Segmenter struct {
	ffmpegPath  string
	scratchRoot string
	runner      CommandRunner
	mkdirAll    func(path string, perm os.FileMode) error
	mkdirTemp   func(dir, pattern string) (string, error)
	readDir     func(name string) ([]os.DirEntry, error)
	remove      func(name string) error
	removeAll   func(path string) error
	logger      zerolog.Logger
}

// NewSegmenter constructs the production segmenter with OS dependencies.
func NewSegmenter(ffmpegPath, scratchRoot string, logger zerolog.Logger) *Segmenter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Segmenter{
		ffmpegPath:  ffmpegPath,
		scratchRoot: scratchRoot,
		runner:      &ExecRunner{},
		mkdirAll:    os.MkdirAll,
		mkdirTemp:   os.MkdirTemp,
		readDir:     os.ReadDir,
		remove:      os.Remove,
		removeAll:   os.RemoveAll,
		logger:      logger,
	}
}

// NewSegmenterForTests constructs a segmenter with an injectable runner.
func NewSegmenterForTests(ffmpegPath, scratchRoot string, runner CommandRunner) *Segmenter {
	s := NewSegmenter(ffmpegPath, scratchRoot, zerolog.Nop())
	s.runner = runner
	return s
}

// Split runs ffmpeg over inputPath and returns the produced chunks in playback
// order. An empty chunk list is not an error; callers fall back to the source.
func (s *Segmenter) Split(ctx context.Context, inputPath string, segmentSeconds int) (*Result, error) {
	if segmentSeconds <= 0 {
		segmentSeconds = DefaultSegmentSeconds
	}

	if err := s.mkdirAll(s.scratchRoot, 0o755); err != nil {
		return nil, apperr.New(apperr.KindSegmentation, stage, "cannot create scratch root", err)
	}
	dir, err := s.mkdirTemp(s.scratchRoot, "segments_*")
	if err != nil {
		return nil, apperr.New(apperr.KindSegmentation, stage, "cannot create scratch directory", err)
	}

	args := BuildSegmentArgs(inputPath, filepath.Join(dir, chunkPattern), segmentSeconds)
	s.logger.Debug().
		Str("dir", dir).
		Int("segmentSeconds", segmentSeconds).
		Msg("Running ffmpeg segmenter")

	res, runErr := s.runner.Run(ctx, s.ffmpegPath, args...)
	log := CommandLog{
		Command:  s.ffmpegPath,
		Args:     args,
		ExitCode: res.ExitCode,
		Stderr:   res.Stderr,
	}
	if runErr != nil {
		s.discard(dir)
		return nil, apperr.New(apperr.KindSegmentation, stage, "ffmpeg segmentation failed", &CommandError{Log: log, Err: runErr})
	}
	if err := ctx.Err(); err != nil {
		s.discard(dir)
		return nil, err
	}

	entries, err := s.readDir(dir)
	if err != nil {
		s.discard(dir)
		return nil, apperr.New(apperr.KindSegmentation, stage, "cannot list segment output", err)
	}

	result := &Result{
		Dir:       dir,
		Chunks:    collectChunks(dir, entries, time.Duration(segmentSeconds)*time.Second),
		Log:       log,
		remove:    s.remove,
		removeAll: s.removeAll,
	}

	s.logger.Info().
		Str("dir", dir).
		Int("chunks", len(result.Chunks)).
		Msg("Segmentation complete")
	return result, nil
}

func (s *Segmenter) discard(dir string) {
	if err := s.removeAll(dir); err != nil {
		s.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove scratch directory")
	}
}

// collectChunks keeps part_NNN.wav files and orders them by sequence number,
// never by the order the filesystem happened to list them.
func collectChunks(dir string, entries []os.DirEntry, budget time.Duration) []Chunk {
	chunks := make([]Chunk, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := chunkName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		seq, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		chunks = append(chunks, Chunk{
			Path:     filepath.Join(dir, entry.Name()),
			Index:    seq,
			Duration: budget,
		})
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})
	return chunks
}

// BuildSegmentArgs builds the ffmpeg argv for mono, resampled, fixed-length
// WAV segments with independent timestamps.
func BuildSegmentArgs(inputPath, outPattern string, segmentSeconds int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(SampleRate),
		"-c:a", "pcm_s16le",
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-reset_timestamps", "1",
		outPattern,
	}
}

// ChunkLabel is a short human label for logs, e.g. "part_002.wav".
func ChunkLabel(c Chunk) string {
	return strings.TrimSpace(filepath.Base(c.Path))
}
