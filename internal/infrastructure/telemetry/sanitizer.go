package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// PIILevel controls how much of a chat message may reach logs and traces.
type PIILevel string

const (
	PIILevelNone   PIILevel = "none"
	PIILevelHashed PIILevel = "hashed"
	PIILevelFull   PIILevel = "full"
)

const redacted = "[REDACTED]"

// ParsePIILevel maps a config value to a level. Unknown values fall back to hashed.
func ParsePIILevel(value string) PIILevel {
	switch level := PIILevel(strings.ToLower(strings.TrimSpace(value))); level {
	case PIILevelNone, PIILevelFull:
		return level
	default:
		return PIILevelHashed
	}
}

// scrubRule replaces matches of pattern. A rule with a label swaps the match
// for a salted digest so equal values still correlate across log lines.
type scrubRule struct {
	pattern *regexp.Regexp
	label   string
	fixed   string
}

// Order matters: IBANs embed card-shaped digit runs, and both go before phone
// numbers, whose pattern would otherwise consume their digit groups.
var hashedRules = []scrubRule{
	{pattern: regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,4})?\b`), fixed: "[IBAN:REDACTED]"},
	{pattern: regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`), fixed: "[CC:REDACTED]"},
	{pattern: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), label: "EMAIL"},
	{pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), label: "IP"},
	{pattern: regexp.MustCompile(`\+?\b\d{2,3}[-.\s]?\d{3,4}[-.\s]?\d{3,4}\b`), label: "PHONE"},
	{pattern: regexp.MustCompile(`([?&](?:token|access_token|key|signature)=)[^&\s]+`), fixed: "${1}" + redacted},
}

// Sanitizer scrubs message text and user identifiers before they are logged.
type Sanitizer struct {
	level PIILevel
	salt  string
}

// NewSanitizer creates a sanitizer. salt keeps digests stable per deployment.
func NewSanitizer(level PIILevel, salt string) *Sanitizer {
	return &Sanitizer{level: level, salt: salt}
}

// SanitizeText scrubs free text according to the configured level.
func (s *Sanitizer) SanitizeText(input string) string {
	return s.apply(input, s.scrub)
}

// SanitizeUserID replaces a user ID with its digest at the hashed level.
func (s *Sanitizer) SanitizeUserID(userID string) string {
	return s.apply(userID, s.digest)
}

func (s *Sanitizer) apply(input string, hashed func(string) string) string {
	if input == "" {
		return ""
	}
	switch s.level {
	case PIILevelFull:
		return input
	case PIILevelNone:
		return redacted
	default:
		return hashed(input)
	}
}

func (s *Sanitizer) scrub(input string) string {
	out := input
	for _, rule := range hashedRules {
		if rule.label == "" {
			out = rule.pattern.ReplaceAllString(out, rule.fixed)
			continue
		}
		label := rule.label
		out = rule.pattern.ReplaceAllStringFunc(out, func(match string) string {
			return "[" + label + ":" + s.digest(match) + "]"
		})
	}
	return out
}

// digest is the first 8 hex chars of sha256(value+salt).
func (s *Sanitizer) digest(value string) string {
	sum := sha256.Sum256([]byte(value + s.salt))
	return hex.EncodeToString(sum[:])[:8]
}
