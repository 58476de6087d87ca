package usecase

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// Separators tried in order: paragraphs, lines, sentences, words, runes.
var chunkSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// chunker splits text into pieces of at most size runes. Consecutive chunks
// share up to overlap runes of trailing text.
type chunker struct {
	size     int
	overlap  int
	splitter textsplitter.RecursiveCharacter
}

func newChunker(size, overlap int) chunker {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return chunker{
		size:    size,
		overlap: overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithSeparators(chunkSeparators),
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}
}

func (c chunker) split(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(text) <= c.size {
		return []string{text}, nil
	}
	return c.splitter.SplitText(text)
}
