package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidChunkConfig is returned when chunk size is not strictly greater
// than overlap.
var ErrInvalidChunkConfig = errors.New("chunk size must be greater than overlap")

// ErrNoRelevantContext is returned by the query pipeline when no chunk clears
// the relevance floor. The caller answers honestly instead of guessing.
var ErrNoRelevantContext = errors.New("no relevant context found for query")

// ExtractionAttempt records one extraction strategy's failure.
type ExtractionAttempt struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// ExtractionError means every extraction strategy failed for a document. It
// carries the per-strategy failure reasons for the document's error message.
type ExtractionError struct {
	Filename string
	Attempts []ExtractionAttempt
}

func (e *ExtractionError) Error() string {
	reasons := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		reasons[i] = fmt.Sprintf("%s: %s", a.Strategy, a.Reason)
	}
	return fmt.Sprintf("all extraction strategies failed for %s (%s)", e.Filename, strings.Join(reasons, "; "))
}
