package ingest

import "strings"

// Splitter cuts document text into fixed-size chunks with a trailing
// overlap, so a sentence straddling a boundary still lands whole in at
// least one chunk.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter builds a splitter. An overlap at or above the chunk size
// would never advance, so it is clamped to zero.
func NewSplitter(size, overlap int) *Splitter {
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split slices text into overlapping chunks. Boundaries are rune
// positions, never the middle of a multibyte character. Chunks are
// trimmed; whitespace-only chunks are dropped.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if s.size <= 0 || len(runes) <= s.size {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	step := s.size - s.overlap
	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + s.size
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[i:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
