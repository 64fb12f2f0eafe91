package text_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/book-expert/speech-studio/internal/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type normalizerTestCase struct {
	name     string
	input    string
	expected string
}

func TestNormalizer_Normalize(t *testing.T) {
	t.Parallel()

	normalizer := text.NewNormalizer()

	tests := []normalizerTestCase{
		{name: "empty", input: "", expected: ""},
		{name: "collapses inline whitespace", input: "Hello \t  world", expected: "Hello world"},
		{name: "smart quotes", input: "“Hi,” she said. ‘ok’", expected: `"Hi," she said. 'ok'`},
		{name: "dashes", input: "well—maybe 1–2", expected: "well - maybe 1-2"},
		{name: "line endings", input: "one\r\ntwo\rthree", expected: "one\ntwo\nthree"},
		{name: "keeps paragraph breaks", input: "  first  \n\n  second ", expected: "first\n\nsecond"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, testCase.expected, normalizer.Normalize(testCase.input))
		})
	}
}

func TestSplitter_EmptyInput(t *testing.T) {
	t.Parallel()

	splitter := text.NewSplitter(100)
	assert.Empty(t, splitter.Split(""))
	assert.Empty(t, splitter.Split(" \n\n\t "))
}

func TestSplitter_ParagraphsStartNewChunks(t *testing.T) {
	t.Parallel()

	splitter := text.NewSplitter(1000)

	chunks := splitter.Split("First paragraph.\nStill first.\n\nSecond paragraph.")
	assert.Equal(t, []string{"First paragraph. Still first.", "Second paragraph."}, chunks)
}

func TestSplitter_PacksSentences(t *testing.T) {
	t.Parallel()

	splitter := text.NewSplitter(30)

	chunks := splitter.Split("One two three. Four five six. Seven eight nine! Ten?")
	assert.Equal(t, []string{"One two three. Four five six.", "Seven eight nine! Ten?"}, chunks)
}

func TestSplitter_LongSentenceSplitsOnWords(t *testing.T) {
	t.Parallel()

	splitter := text.NewSplitter(12)

	chunks := splitter.Split("alpha beta gamma delta epsilon")
	assert.Equal(t, []string{"alpha beta", "gamma delta", "epsilon"}, chunks)
}

func TestSplitter_LongWordIsCut(t *testing.T) {
	t.Parallel()

	splitter := text.NewSplitter(4)

	chunks := splitter.Split("abcdefghij")
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunks)
}

func TestSplitter_RespectsLimitInRunes(t *testing.T) {
	t.Parallel()

	const limit = 25

	splitter := text.NewSplitter(limit)
	input := strings.Repeat("Ünïcödé wörds ärë fïnë. ", 20)

	chunks := splitter.Split(input)
	require.NotEmpty(t, chunks)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), limit, chunk)
	}

	assert.Equal(t, strings.Join(strings.Fields(input), " "), strings.Join(chunks, " "))
}

func TestSplitter_DefaultLimit(t *testing.T) {
	t.Parallel()

	splitter := text.NewSplitter(0)
	input := strings.Repeat("word ", 300)

	chunks := splitter.Split(input)
	require.Len(t, chunks, 2)
	assert.LessOrEqual(t, utf8.RuneCountInString(chunks[0]), text.DefaultMaxChunkChars)
}
