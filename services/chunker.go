package services

import (
	"fmt"
	"strings"
	"unicode"

	"docanalyzer-backend/models"
)

// Chunker splits extracted text into overlapping chunks. Offsets are rune
// based so multi-byte text never gets split mid-character.
type Chunker struct {
	config models.ChunkingConfig
}

func NewChunker(config models.ChunkingConfig) (*Chunker, error) {
	if config.ChunkSize <= 0 || config.Overlap < 0 || config.ChunkSize <= config.Overlap {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunkConfig, config.ChunkSize, config.Overlap)
	}
	return &Chunker{config: config}, nil
}

// ChunkText splits text into chunks of ChunkSize runes, each overlapping the
// previous by Overlap runes. Chunk ends are snapped back to the nearest
// sentence or whitespace boundary within a small tolerance, so words are not
// cut in half when a boundary is nearby.
func (ck *Chunker) ChunkText(documentID, text string) []models.DocumentChunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	tolerance := ck.config.Overlap
	if tolerance > 120 {
		tolerance = 120
	}

	var chunks []models.DocumentChunk
	start := 0
	order := 0
	for start < len(runes) {
		end := start + ck.config.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = snapToBoundary(runes, start, end, tolerance)
		}

		chunkText := string(runes[start:end])
		chunks = append(chunks, models.DocumentChunk{
			ChunkID:    fmt.Sprintf("%s_chunk_%d", documentID, order),
			Order:      order,
			StartIndex: start,
			EndIndex:   end,
			Text:       chunkText,
			CharCount:  end - start,
			WordCount:  len(strings.Fields(chunkText)),
		})
		order++

		if end >= len(runes) {
			break
		}
		next := end - ck.config.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// snapToBoundary moves end back to just after the nearest sentence terminator
// within tolerance, or failing that to the nearest whitespace. Returns the
// original end when no boundary is close enough.
func snapToBoundary(runes []rune, start, end, tolerance int) int {
	limit := end - tolerance
	if limit < start+1 {
		limit = start + 1
	}

	for i := end - 1; i >= limit; i-- {
		switch runes[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	for i := end - 1; i >= limit; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}
