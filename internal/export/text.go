// Package export renders finished jobs as downloadable reports.
package export

import (
	"regexp"
	"strings"
	"time"

	"mimi/internal/model"
)

const (
	banner = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
	rule   = "────────────────────────────────────────"
)

var bulletPrefix = regexp.MustCompile(`(?m)^-\s+`)

// Text renders the plain-text summary report for a job. Missing transcript
// or summary render as "-".
func Text(job *model.Job, includeTranscript bool) string {
	lines := []string{
		banner,
		"        MimiNote.AI — Summary Report",
		banner,
		"ไฟล์: " + job.Filename,
		"รหัสงาน: " + job.ID.String(),
		"วันที่: " + job.CreatedAt.UTC().Format(time.RFC3339),
		"",
	}

	if includeTranscript {
		lines = append(lines,
			"■ Transcript",
			rule,
			orDash(deref(job.Transcript)),
			"",
		)
	}

	summary := bulletPrefix.ReplaceAllString(deref(job.Summary), "• ")
	lines = append(lines,
		"■ Summary",
		rule,
		orDash(summary),
		"",
		"— สร้างโดย MimiNote.AI —",
	)

	return strings.Join(lines, "\n")
}

// Filename is the attachment name for a rendered report.
func Filename(job *model.Job, ext string) string {
	return "summary_" + job.ID.String() + "." + ext
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "-"
	}
	return s
}
