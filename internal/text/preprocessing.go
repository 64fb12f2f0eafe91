// Package text prepares user text for synthesis: it normalizes typography and
// whitespace and splits the result into chunks that are each sent to the
// speech API independently.
package text

import (
	"regexp"
	"strings"
)

// Regex patterns for text normalization.
const (
	inlineWhitespacePattern = `[ \t\f\v\x{00A0}]+`
	paragraphBreakPattern   = `\n\s*\n`
	sentenceEndPattern      = `[.!?…]+["')\]]*\s+`
)

// Punctuation and formatting constants.
const (
	emDash         = "—"
	enDash         = "–"
	figureDash     = "‒"
	carriageReturn = "\r\n"
	loneReturn     = "\r"
	lineFeed       = "\n"
)

// Normalizer cleans text without changing what gets spoken.
type Normalizer struct {
	inlineWhitespace *regexp.Regexp
	typography       *strings.Replacer
	lineEndings      *strings.Replacer
}

// NewNormalizer creates a Normalizer with precompiled patterns and replacers.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		inlineWhitespace: regexp.MustCompile(inlineWhitespacePattern),
		typography: strings.NewReplacer(
			emDash, " - ",
			enDash, "-",
			figureDash, "-",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
		lineEndings: strings.NewReplacer(carriageReturn, lineFeed, loneReturn, lineFeed),
	}
}

// Normalize unifies line endings, quotes and dashes and collapses runs of
// inline whitespace. Paragraph breaks are preserved.
func (n *Normalizer) Normalize(input string) string {
	if input == "" {
		return input
	}

	normalized := n.lineEndings.Replace(input)
	normalized = n.typography.Replace(normalized)
	normalized = n.inlineWhitespace.ReplaceAllString(normalized, " ")

	lines := strings.Split(normalized, lineFeed)
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	return strings.TrimSpace(strings.Join(lines, lineFeed))
}
