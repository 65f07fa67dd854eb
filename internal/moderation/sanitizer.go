package moderation

import (
	"regexp"
	"strings"
)

// DefaultBannedPhrases is used when no phrases are configured.
var DefaultBannedPhrases = []string{"europe itch", "gabe itch", "pho q"}

var (
	// RE2's \s omits \v, so ASCII whitespace is spelled out.
	disallowedRunes = regexp.MustCompile(`[^a-zA-Z0-9\t\n\v\f\r ]`)
	whitespaceRuns  = regexp.MustCompile(`[\t\n\v\f\r ]+`)
)

// Sanitizer strips banned phrases and every character that is not an ASCII letter,
// digit or whitespace.
type Sanitizer struct {
	banned []*regexp.Regexp
}

// NewSanitizer compiles case-insensitive literal matchers for the given phrases.
// Blank phrases are ignored.
func NewSanitizer(phrases []string) *Sanitizer {
	s := &Sanitizer{}
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		s.banned = append(s.banned, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(p)))
	}
	return s
}

// Sanitize returns the cleaned text. An empty result means the comment must be rejected.
//
// Each pass can bring together fragments that form a new banned phrase (removing
// punctuation or collapsing spaces), so passes repeat until the text is stable.
// Every pass either shrinks the text or leaves it unchanged, which bounds the loop and
// makes Sanitize idempotent.
func (s *Sanitizer) Sanitize(text string) string {
	for {
		next := s.pass(text)
		if next == text {
			return next
		}
		text = next
	}
}

func (s *Sanitizer) pass(text string) string {
	for _, re := range s.banned {
		text = re.ReplaceAllString(text, "")
	}
	text = disallowedRunes.ReplaceAllString(text, "")
	text = whitespaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
