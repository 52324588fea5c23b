// Package security provides validation, sanitization, and limits for the editions pipeline.
package security

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

// Security limits and configuration
const (
	// MaxIssueTitleLength is the longest title an issue tracker accepts
	MaxIssueTitleLength = 255

	// MaxTitleLength is the maximum length for document titles
	MaxTitleLength = 255

	// MaxConcurrency is the hard limit for concurrently processed documents
	MaxConcurrency = 64

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096

	// MaxArchiveSize is the maximum uncompressed size of a downloaded export (4GB)
	MaxArchiveSize = 4 << 30

	// MaxArchiveEntries is the maximum number of files in a downloaded export
	MaxArchiveEntries = 100000
)

var validID = regexp.MustCompile(`^[0-9]+$`)

// ValidateID validates a remote collection, document or job id.
// Ids end up in URL paths, so only digits are accepted.
func ValidateID(id string) error {
	if id == "" || len(id) > 20 || !validID.MatchString(id) {
		return core.ErrInvalidID
	}
	return nil
}

// ValidateTitle validates a document title used for uploads.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return core.ErrInvalidTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return core.ErrInvalidTitle
	}
	if strings.ContainsAny(title, "\x00\n\r") {
		return core.ErrInvalidTitle
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	return truncateRunes(sanitized.String(), MaxErrorMessageLength)
}

// TruncateTitle shortens an issue title to the tracker's limit.
func TruncateTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	return truncateRunes(title, MaxIssueTitleLength)
}

// Redact replaces every occurrence of the given secrets with "***".
func Redact(msg string, secrets ...string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, s, "***")
	}
	return msg
}

// SafeJoin joins name below dir and rejects paths that would escape it.
func SafeJoin(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", core.ErrUnsafePath
	}
	base := filepath.Clean(dir)
	target := filepath.Join(base, filepath.FromSlash(name))
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", core.ErrUnsafePath
	}
	return target, nil
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}
