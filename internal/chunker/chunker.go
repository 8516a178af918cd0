// Package chunker splits extracted document text into bounded-size segments
// for question generation.
package chunker

import "unicode/utf8"

// DefaultMaxChars is the default maximum segment size.
const DefaultMaxChars = 5000

// Chunk is an immutable slice of source text with a stable index within the
// document's chunk sequence.
type Chunk struct {
	Index int
	Text  string
}

// Split cuts text into contiguous, non-overlapping segments of at most
// maxChars bytes, in original order. The final segment may be shorter, and a
// cut point never lands inside a multi-byte rune, so every segment is valid
// UTF-8 whenever the input is. Empty input yields a single empty segment.
// maxChars values below 1 fall back to DefaultMaxChars.
func Split(text string, maxChars int) []Chunk {
	if maxChars < 1 {
		maxChars = DefaultMaxChars
	}
	if text == "" {
		return []Chunk{{Index: 0, Text: ""}}
	}
	chunks := make([]Chunk, 0, len(text)/maxChars+1)
	for i := 0; i < len(text); {
		end := i + maxChars
		if end >= len(text) {
			end = len(text)
		} else {
			for end > i && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == i {
				// maxChars is smaller than one rune; split it rather
				// than loop forever.
				end = i + maxChars
			}
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: text[i:end]})
		i = end
	}
	return chunks
}
