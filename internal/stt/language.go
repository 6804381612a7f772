package stt

import (
	"regexp"
	"strings"
)

var languageTag = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// NormalizeLanguage returns a usable language hint or "" when the caller
// asked for auto detection or sent something the providers would reject.
func NormalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	if !languageTag.MatchString(lang) {
		return ""
	}
	return lang
}

// ResolveLanguage applies the configured default only when the request sent
// no hint at all. An explicit "auto" or an unusable tag leaves it unset.
func ResolveLanguage(requested, fallback string) string {
	if strings.TrimSpace(requested) == "" {
		return NormalizeLanguage(fallback)
	}
	return NormalizeLanguage(requested)
}
