// Package diagnostics reports whether the external tools and paths the
// pipeline depends on are usable.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"mimi/internal/ai"
	"mimi/internal/media"
)

const (
	toolTimeout = 5 * time.Second
	pingTimeout = 10 * time.Second
)

// Check is the outcome of one probe.
type Check struct {
	OK      bool   `json:"ok"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
	Sample  string `json:"sample,omitempty"`
	Note    string `json:"note,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Report aggregates all probes. OK is false when any check failed.
type Report struct {
	OK          bool             `json:"ok"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Checks      map[string]Check `json:"checks"`
}

// Tools names the executables, directories and API client to probe. A nil
// Chat skips the OpenAI check.
type Tools struct {
	FFmpeg     string
	FFprobe    string
	ScratchDir string
	Chat       ai.ChatCompleter
	ChatModel  string
}

// Checker probes external tools through the same runner the segmenter uses.
type Checker struct {
	tools    Tools
	runner   media.CommandRunner
	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
	now      func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(tools Tools) *Checker {
	return &Checker{
		tools:    tools,
		runner:   &media.ExecRunner{},
		lookPath: exec.LookPath,
		stat:     os.Stat,
		now:      time.Now,
	}
}

// NewCheckerForTests injects the runner and filesystem lookups.
func NewCheckerForTests(tools Tools, runner media.CommandRunner,
	lookPath func(string) (string, error), stat func(string) (os.FileInfo, error)) *Checker {
	c := NewChecker(tools)
	c.runner = runner
	c.lookPath = lookPath
	c.stat = stat
	return c
}

// Run executes every probe.
func (c *Checker) Run(ctx context.Context) Report {
	checks := map[string]Check{
		"ffmpeg":      c.checkTool(ctx, c.tools.FFmpeg),
		"ffprobe":     c.checkTool(ctx, c.tools.FFprobe),
		"scratch_dir": c.checkDir(c.tools.ScratchDir),
	}
	if c.tools.Chat != nil {
		checks["openai_api"] = c.checkOpenAI(ctx)
	}

	ok := true
	for _, check := range checks {
		if !check.OK {
			ok = false
			break
		}
	}

	return Report{
		OK:          ok,
		GeneratedAt: c.now().UTC(),
		Checks:      checks,
	}
}

// checkTool resolves name on PATH and reports the first line of -version.
func (c *Checker) checkTool(ctx context.Context, name string) Check {
	path, err := c.lookPath(name)
	if err != nil {
		return Check{Error: fmt.Sprintf("not found in PATH: %s", name)}
	}

	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	res, err := c.runner.Run(ctx, path, "-version")
	if err != nil {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = err.Error()
		}
		return Check{Path: path, Error: msg}
	}

	return Check{OK: true, Path: path, Version: firstLine(res.Stdout)}
}

// checkOpenAI sends a tiny completion through the summarizer's client.
func (c *Checker) checkOpenAI(ctx context.Context) Check {
	reply, err := ai.Ping(ctx, c.tools.Chat, c.tools.ChatModel, pingTimeout)
	if err != nil {
		return Check{Error: err.Error()}
	}
	return Check{OK: true, Sample: reply}
}

func (c *Checker) checkDir(dir string) Check {
	if strings.TrimSpace(dir) == "" {
		return Check{Error: "directory is not configured"}
	}
	info, err := c.stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			// created on first upload
			return Check{OK: true, Path: dir, Note: "will be created on demand"}
		}
		return Check{Path: dir, Error: err.Error()}
	}
	if !info.IsDir() {
		return Check{Path: dir, Error: "not a directory"}
	}
	return Check{OK: true, Path: dir, Note: "path accessible"}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
