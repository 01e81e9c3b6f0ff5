package nova

import (
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// defaultInjectionPhrases are known prompt-injection patterns, stored
// lowercase for case-insensitive matching.
var defaultInjectionPhrases = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard previous instructions",
	"forget your instructions",
	"system override",
	"override your instructions",
	"enter developer mode",
	"you are now unrestricted",
}

// zeroWidthChars strips Unicode zero-width and invisible characters used to
// obfuscate injection payloads.
var zeroWidthChars = strings.NewReplacer(
	"\u200B", " ", // zero-width space
	"\u200C", " ", // zero-width non-joiner
	"\u200D", " ", // zero-width joiner
	"\uFEFF", " ", // zero-width no-break space (BOM)
	"\u2060", " ", // word joiner
	"\u00AD", "", // soft hyphen
)

var emailPattern = regexp.MustCompile(`[\w.\-]+@[\w.\-]+\.\w+`)

// SafetyFilter classifies input text and sanitizes output text. Input
// violations abort the whole request; output findings are redacted
// transparently and never raise. Safe for concurrent use.
type SafetyFilter struct {
	blocked   []*regexp.Regexp
	phrases   []string
	redactors []redactor
	logger    *slog.Logger
}

type redactor struct {
	pattern     *regexp.Regexp
	replacement string
}

// SafetyOption configures a SafetyFilter.
type SafetyOption func(*SafetyFilter)

// BlockPatterns adds regexes whose match in input text is a violation.
func BlockPatterns(patterns ...*regexp.Regexp) SafetyOption {
	return func(f *SafetyFilter) { f.blocked = append(f.blocked, patterns...) }
}

// BlockPhrases adds case-insensitive substring phrases to the injection list.
func BlockPhrases(phrases ...string) SafetyOption {
	return func(f *SafetyFilter) {
		for _, p := range phrases {
			f.phrases = append(f.phrases, strings.ToLower(p))
		}
	}
}

// Redact adds an output redaction rule.
func Redact(pattern *regexp.Regexp, replacement string) SafetyOption {
	return func(f *SafetyFilter) {
		f.redactors = append(f.redactors, redactor{pattern: pattern, replacement: replacement})
	}
}

// SafetyLogger sets the structured logger for the filter.
func SafetyLogger(l *slog.Logger) SafetyOption {
	return func(f *SafetyFilter) { f.logger = l }
}

// NewSafetyFilter creates a filter with the built-in injection phrase list
// and email redaction on output.
func NewSafetyFilter(opts ...SafetyOption) *SafetyFilter {
	f := &SafetyFilter{
		phrases: append([]string{}, defaultInjectionPhrases...),
		redactors: []redactor{
			{pattern: emailPattern, replacement: "[EMAIL_REDACTED]"},
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = nopLogger
	}
	return f
}

// CheckInput classifies text and returns a *SafetyError on violation.
// Text is normalized first (zero-width strip + NFKC) so fullwidth and
// invisible-character obfuscation does not bypass the phrase list.
func (f *SafetyFilter) CheckInput(text string) error {
	cleaned := norm.NFKC.String(zeroWidthChars.Replace(text))
	lower := strings.ToLower(cleaned)

	for _, phrase := range f.phrases {
		if strings.Contains(lower, phrase) {
			f.logger.Warn("input blocked", "reason", "injection phrase")
			return &SafetyError{Reason: "potential prompt injection detected"}
		}
	}
	for _, re := range f.blocked {
		if re.MatchString(cleaned) {
			f.logger.Warn("input blocked", "reason", "blocked pattern")
			return &SafetyError{Reason: "blocked content detected in input"}
		}
	}
	return nil
}

// Sanitize transforms output text, redacting findings in place. It never
// fails: the worst case is text returned unchanged.
func (f *SafetyFilter) Sanitize(text string) string {
	for _, r := range f.redactors {
		text = r.pattern.ReplaceAllString(text, r.replacement)
	}
	return text
}
