package text

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChunkChars bounds the size of one synthesis request.
const DefaultMaxChunkChars = 1200

// Splitter breaks normalized text into chunks of at most MaxChars runes.
// Paragraphs always start a new chunk; sentences are packed greedily and a
// sentence longer than the limit is split on word boundaries.
type Splitter struct {
	normalizer     *Normalizer
	paragraphBreak *regexp.Regexp
	sentenceEnd    *regexp.Regexp
	maxChars       int
}

// NewSplitter creates a Splitter. A non-positive maxChars selects
// DefaultMaxChunkChars.
func NewSplitter(maxChars int) *Splitter {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}

	return &Splitter{
		normalizer:     NewNormalizer(),
		paragraphBreak: regexp.MustCompile(paragraphBreakPattern),
		sentenceEnd:    regexp.MustCompile(sentenceEndPattern),
		maxChars:       maxChars,
	}
}

// Split returns the chunks of input in reading order. Blank input yields none.
func (s *Splitter) Split(input string) []string {
	normalized := s.normalizer.Normalize(input)
	if normalized == "" {
		return nil
	}

	var chunks []string

	for _, paragraph := range s.paragraphBreak.Split(normalized, -1) {
		paragraph = strings.Join(strings.Fields(paragraph), " ")
		if paragraph == "" {
			continue
		}

		chunks = append(chunks, s.packSentences(s.sentences(paragraph))...)
	}

	return chunks
}

// sentences splits a paragraph after terminal punctuation, keeping the
// punctuation with its sentence.
func (s *Splitter) sentences(paragraph string) []string {
	var result []string

	last := 0

	for _, loc := range s.sentenceEnd.FindAllStringIndex(paragraph, -1) {
		sentence := strings.TrimSpace(paragraph[last:loc[1]])
		if sentence != "" {
			result = append(result, sentence)
		}

		last = loc[1]
	}

	if tail := strings.TrimSpace(paragraph[last:]); tail != "" {
		result = append(result, tail)
	}

	return result
}

func (s *Splitter) packSentences(sentences []string) []string {
	var (
		chunks  []string
		current strings.Builder
	)

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, sentence := range sentences {
		if runeLen(sentence) > s.maxChars {
			flush()
			chunks = append(chunks, s.splitWords(sentence)...)

			continue
		}

		if current.Len() > 0 && runeLen(current.String())+1+runeLen(sentence) > s.maxChars {
			flush()
		}

		if current.Len() > 0 {
			current.WriteByte(' ')
		}

		current.WriteString(sentence)
	}

	flush()

	return chunks
}

// splitWords hard-splits an over-long sentence. A single word longer than the
// limit is cut at the rune limit.
func (s *Splitter) splitWords(sentence string) []string {
	var (
		chunks  []string
		current []string
		length  int
	)

	for _, word := range strings.Fields(sentence) {
		for runeLen(word) > s.maxChars {
			if len(current) > 0 {
				chunks = append(chunks, strings.Join(current, " "))
				current, length = nil, 0
			}

			head, tail := splitAtRune(word, s.maxChars)
			chunks = append(chunks, head)
			word = tail
		}

		wordLen := runeLen(word)
		if len(current) > 0 && length+1+wordLen > s.maxChars {
			chunks = append(chunks, strings.Join(current, " "))
			current, length = nil, 0
		}

		if len(current) > 0 {
			length++
		}

		current = append(current, word)
		length += wordLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

func runeLen(value string) int {
	return utf8.RuneCountInString(value)
}

func splitAtRune(value string, n int) (string, string) {
	runes := []rune(value)

	return string(runes[:n]), string(runes[n:])
}
