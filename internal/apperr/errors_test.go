package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mimi/internal/deadline"
)

func TestKindOf(t *testing.T) {
	timeout := &deadline.TimeoutError{Label: "part 2/3", Budget: time.Second}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error", err: errors.New("x"), want: KindInternal},
		{name: "segmentation", err: New(KindSegmentation, "segmenting", "ffmpeg failed", nil), want: KindSegmentation},
		{name: "wrapped kind", err: fmt.Errorf("run: %w", New(KindInvalidInput, "intake", "no file", nil)), want: KindInvalidInput},
		{name: "bare timeout", err: timeout, want: KindTimeout},
		{name: "timeout inside transcription", err: New(KindTranscription, "transcribing", "segment 2 failed", timeout), want: KindTimeout},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	err := New(KindTranscription, "transcribing", "segment 1 failed", errors.New("status 500"))
	require.Equal(t, "transcribing: segment 1 failed: status 500", err.Error())
	require.Equal(t, "segmenting: no output", New(KindSegmentation, "segmenting", "no output", nil).Error())
}

func TestIsRetriable(t *testing.T) {
	require.True(t, IsRetriable(&deadline.TimeoutError{Label: "x", Budget: time.Millisecond}))
	require.False(t, IsRetriable(New(KindTranscription, "transcribing", "remote error", nil)))
}
