// Package banparse extracts ban metadata from the plain text of a server
// disconnect message. Ban messages are free-form chat text, so extraction is
// heuristic: anything that does not match falls back to a default value.
package banparse

import (
	"regexp"
	"strings"

	"github.com/banprobe-project/banprobe/internal/chat"
)

// Default field values used when nothing in the message matches.
const (
	DefaultReason   = "Unknown"
	DefaultTimeLeft = "Permanent"
	DefaultBanID    = "N/A"

	TimeLeftTemporary = "Temporary (duration unknown)"
	TimeLeftNA        = "N/A"
)

// Record is the structured result of parsing a ban message.
type Record struct {
	Reason   string `json:"reason"`
	TimeLeft string `json:"time_left"`
	BanID    string `json:"ban_id"`
}

// Alternatives are ordered most to least specific; with leftmost-first
// matching the earliest alternative wins at a given position.
var reDuration = regexp.MustCompile(`(\d+d\s+\d+h\s+\d+m\s+\d+s|\d+d\s+\d+h|\d+h\s+\d+m|\d+d)`)

// Parse extracts the reason, remaining duration and ban id from text.
// It never fails.
func Parse(text string) Record {
	text = chat.StripFormatting(text)
	lines := splitLines(text)

	rec := Record{
		Reason:   DefaultReason,
		TimeLeft: parseTimeLeft(text),
		BanID:    DefaultBanID,
	}

	sc := newLineScanner()
	for _, line := range lines {
		sc.feed(line)
	}
	if sc.foundReason {
		rec.Reason = sc.reason()
	}
	if sc.hasBanID {
		rec.BanID = sc.banID
	}

	if rec.Reason == DefaultReason && len(lines) > 0 {
		if fallback, ok := reasonAfterBannedLine(lines); ok {
			rec.Reason = fallback
		}
	}

	if containsFold(text, "suspicious activity") {
		rec.TimeLeft = TimeLeftNA
	}

	rec.Reason = strings.TrimSpace(rec.Reason)
	return rec
}

func parseTimeLeft(text string) string {
	if m := reDuration.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	switch {
	case containsFold(text, "permanently"):
		return DefaultTimeLeft
	case containsFold(text, "temporarily"):
		return TimeLeftTemporary
	}
	return DefaultTimeLeft
}

// splitLines returns the trimmed, non-empty lines of text.
func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// reasonAfterBannedLine finds the first line mentioning "banned" and returns
// every following line joined by spaces, or that line itself when it is the
// last one.
func reasonAfterBannedLine(lines []string) (string, bool) {
	for i, line := range lines {
		if !containsFold(line, "banned") {
			continue
		}
		if i+1 < len(lines) {
			return strings.Join(lines[i+1:], " "), true
		}
		return line, true
	}
	return "", false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), prefix)
}

// afterColon returns the trimmed text after the first colon in line.
func afterColon(line string) string {
	_, rest, _ := strings.Cut(line, ":")
	return strings.TrimSpace(rest)
}
