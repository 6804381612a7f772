package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimi/internal/media"
)

type fakeRunner struct {
	results map[string]media.CommandResult
	errs    map[string]error
	calls   [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (media.CommandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.results[name], f.errs[name]
}

func foundAt(dir string) func(string) (string, error) {
	return func(name string) (string, error) { return filepath.Join(dir, name), nil }
}

func TestCheckerRunAllPass(t *testing.T) {
	scratch := t.TempDir()
	runner := &fakeRunner{results: map[string]media.CommandResult{
		"/usr/bin/ffmpeg":  {Stdout: "ffmpeg version 6.1.1 Copyright (c)\nbuilt with gcc\n"},
		"/usr/bin/ffprobe": {Stdout: "ffprobe version 6.1.1\n"},
	}}

	checker := NewCheckerForTests(Tools{FFmpeg: "ffmpeg", FFprobe: "ffprobe", ScratchDir: scratch},
		runner, foundAt("/usr/bin"), os.Stat)
	report := checker.Run(context.Background())

	require.True(t, report.OK, "%+v", report.Checks)
	assert.Equal(t, "ffmpeg version 6.1.1 Copyright (c)", report.Checks["ffmpeg"].Version)
	assert.Equal(t, "/usr/bin/ffprobe", report.Checks["ffprobe"].Path)
	assert.Equal(t, "path accessible", report.Checks["scratch_dir"].Note)
	assert.Equal(t, []string{"/usr/bin/ffmpeg", "-version"}, runner.calls[0])
}

func TestCheckerMissingTool(t *testing.T) {
	checker := NewCheckerForTests(Tools{FFmpeg: "ffmpeg", FFprobe: "ffprobe", ScratchDir: t.TempDir()},
		&fakeRunner{},
		func(name string) (string, error) { return "", errors.New("executable file not found") },
		os.Stat)

	report := checker.Run(context.Background())
	assert.False(t, report.OK)
	assert.Equal(t, "not found in PATH: ffmpeg", report.Checks["ffmpeg"].Error)
	assert.False(t, report.Checks["ffprobe"].OK)
}

func TestCheckerToolFailsReportsStderr(t *testing.T) {
	runner := &fakeRunner{
		results: map[string]media.CommandResult{"/bin/ffprobe": {Stderr: "libavformat missing\n", ExitCode: 127}},
		errs:    map[string]error{"/bin/ffprobe": errors.New("exit status 127")},
	}
	checker := NewCheckerForTests(Tools{FFmpeg: "ffmpeg", FFprobe: "ffprobe", ScratchDir: t.TempDir()},
		runner, foundAt("/bin"), os.Stat)

	report := checker.Run(context.Background())
	assert.False(t, report.OK)
	assert.True(t, report.Checks["ffmpeg"].OK)
	assert.Equal(t, "libavformat missing", report.Checks["ffprobe"].Error)
}

func TestCheckerScratchDir(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	check := func(dir string) Check {
		c := NewCheckerForTests(Tools{ScratchDir: dir}, &fakeRunner{}, foundAt("/bin"), os.Stat)
		return c.checkDir(dir)
	}

	assert.True(t, check(filepath.Join(root, "missing")).OK)
	assert.Equal(t, "not a directory", check(file).Error)
	assert.False(t, check("").OK)
}

type fakeChat struct {
	reply string
	err   error
	model string
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.model = req.Model
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
	}, nil
}

func TestCheckerOpenAI(t *testing.T) {
	runner := &fakeRunner{results: map[string]media.CommandResult{
		"/bin/ffmpeg":  {Stdout: "ffmpeg version 6\n"},
		"/bin/ffprobe": {Stdout: "ffprobe version 6\n"},
	}}
	tools := Tools{FFmpeg: "ffmpeg", FFprobe: "ffprobe", ScratchDir: t.TempDir()}

	report := NewCheckerForTests(tools, runner, foundAt("/bin"), os.Stat).Run(context.Background())
	_, present := report.Checks["openai_api"]
	assert.False(t, present)
	assert.True(t, report.OK)

	chat := &fakeChat{reply: "pong"}
	tools.Chat, tools.ChatModel = chat, "gpt-4o-mini"
	report = NewCheckerForTests(tools, runner, foundAt("/bin"), os.Stat).Run(context.Background())
	require.True(t, report.OK, "%+v", report.Checks)
	assert.Equal(t, Check{OK: true, Sample: "pong"}, report.Checks["openai_api"])
	assert.Equal(t, "gpt-4o-mini", chat.model)

	tools.Chat = &fakeChat{err: errors.New("401 Incorrect API key provided")}
	report = NewCheckerForTests(tools, runner, foundAt("/bin"), os.Stat).Run(context.Background())
	assert.False(t, report.OK)
	assert.Contains(t, report.Checks["openai_api"].Error, "401 Incorrect API key provided")
}
