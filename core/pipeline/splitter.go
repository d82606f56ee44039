package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order: paragraphs, lines, sentences,
// words and finally single characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// DefaultOverlap returns 15% of chunkSize.
func DefaultOverlap(chunkSize int) int {
	return chunkSize * 15 / 100
}

// RecursiveSplitter creates a chunker that splits at the coarsest separator
// present in the text and recurses with finer separators into pieces that
// are still too long. Pieces are then merged up to chunkSize characters,
// and consecutive chunks share a tail of at most overlap characters.
func RecursiveSplitter(chunkSize int, overlap int) ChunkFunc {
	return func(text string) ([]string, error) {
		if chunkSize <= 0 {
			return nil, fmt.Errorf("chunk size must be positive")
		}
		if overlap < 0 || overlap >= chunkSize {
			return nil, fmt.Errorf("overlap must be non-negative and smaller than chunk size")
		}

		if strings.TrimSpace(text) == "" {
			return []string{}, nil
		}

		s := &splitter{chunkSize: chunkSize, overlap: overlap}
		return s.split(text, DefaultSeparators), nil
	}
}

type splitter struct {
	chunkSize int
	overlap   int
}

func (s *splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var final []string
	var good []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if length(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}

		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(finer) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, finer)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}

	return final
}

// merge joins pieces into chunks of at most chunkSize characters. When a
// chunk is emitted, pieces are dropped from its front until at most overlap
// characters remain to start the next chunk.
func (s *splitter) merge(pieces []string) []string {
	var chunks []string
	var current []string
	total := 0

	for _, piece := range pieces {
		l := length(piece)
		if total+l > s.chunkSize && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.overlap || (total+l > s.chunkSize && total > 0) {
				total -= length(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += l
	}

	if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeepSeparator splits text at sep and keeps sep at the end of each
// piece. An empty separator splits into single characters.
func splitKeepSeparator(text string, sep string) []string {
	if sep == "" {
		return strings.Split(text, "")
	}

	var pieces []string
	for _, p := range strings.SplitAfter(text, sep) {
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
