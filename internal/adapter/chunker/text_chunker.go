package chunker

import (
	"fmt"
	"strings"

	"productrag/internal/domain"
)

// Break points in order of preference. Each separator stays with the chunk
// it ends.
var boundaries = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? ", "; "},
	{" "},
}

// TextChunker splits document content into overlapping segments measured
// in runes. Chunk i > 0 begins with exactly overlap runes copied from the
// end of chunk i-1.
type TextChunker struct {
	size    int
	overlap int
	minSize int
}

func NewTextChunker(size, overlap, minSize int) (*TextChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", domain.ErrInvalidConfig, overlap, size)
	}
	if minSize < 0 || minSize > size {
		return nil, fmt.Errorf("%w: min chunk size %d must be in [0, %d]", domain.ErrInvalidConfig, minSize, size)
	}
	return &TextChunker{size: size, overlap: overlap, minSize: minSize}, nil
}

func (c *TextChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	runes := []rune(doc.Content)

	var texts []string
	if len(runes) <= c.minSize || len(runes) <= c.size {
		texts = []string{doc.Content}
	} else {
		texts = c.split(runes)
	}

	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		meta := domain.ChunkMetadata{
			Metadata:    doc.Metadata,
			ChunkIndex:  i,
			TotalChunks: len(texts),
			ChunkSize:   len([]rune(text)),
		}
		chunks[i] = domain.Chunk{
			ChunkID:          ChunkID(doc.ID, i),
			ParentDocumentID: doc.ID,
			ChunkIndex:       i,
			TotalChunks:      len(texts),
			Text:             text,
			Metadata:         meta,
		}
	}
	return chunks, nil
}

// ChunkID is the stable identity of the i-th chunk of a document.
func ChunkID(docID string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, i)
}

// Overlap returns the configured overlap in runes.
func (c *TextChunker) Overlap() int {
	return c.overlap
}

func (c *TextChunker) split(runes []rune) []string {
	var texts []string
	start := 0

	for start < len(runes) {
		prefix := 0
		if start > 0 {
			prefix = c.overlap
		}

		limit := start + c.size - prefix
		end := len(runes)
		if limit < len(runes) {
			lo := start + c.minSize - prefix
			if lo < c.overlap {
				lo = c.overlap
			}
			if lo <= start {
				lo = start + 1
			}
			end = breakPoint(runes, lo, limit)
		}

		texts = append(texts, string(runes[start-prefix:end]))
		start = end
	}
	return texts
}

// breakPoint finds the last preferred boundary ending in (lo, limit].
// Falls back to a hard cut at limit.
func breakPoint(runes []rune, lo, limit int) int {
	window := string(runes[lo:limit])
	for _, seps := range boundaries {
		best := -1
		for _, sep := range seps {
			if idx := strings.LastIndex(window, sep); idx >= 0 {
				if cut := idx + len(sep); cut > best {
					best = cut
				}
			}
		}
		if best > 0 {
			return lo + len([]rune(window[:best]))
		}
	}
	return limit
}
