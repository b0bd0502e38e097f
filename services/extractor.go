package services

import (
	"context"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"docanalyzer-backend/internal/logger"
)

// minExtractedChars is the success threshold: a strategy that returns fewer
// non-whitespace characters is treated as a failure and the chain moves on.
const minExtractedChars = 50

// ExtractionResult contains the result of text extraction
type ExtractionResult struct {
	Text   string
	Pages  int
	Method string
}

// ExtractionStrategy is one way of turning a raw file into plain text.
// Strategies are interchangeable and tried in a fixed priority order.
type ExtractionStrategy interface {
	Name() string
	Extract(ctx context.Context, content []byte, filename string) (*ExtractionResult, error)
}

// Extractor runs an ordered fallback chain of extraction strategies. The
// chain itself is the input validation: a file no strategy can read fails
// extraction, no upfront MIME sniffing.
type Extractor struct {
	strategies []ExtractionStrategy
}

func NewExtractor(strategies ...ExtractionStrategy) *Extractor {
	return &Extractor{strategies: strategies}
}

// Extract tries each strategy in order and returns the first result with
// enough non-whitespace text. On total failure it returns an
// ExtractionError listing every attempt.
func (e *Extractor) Extract(ctx context.Context, content []byte, filename string) (*ExtractionResult, error) {
	tracer := otel.Tracer("extractor")
	ctx, span := tracer.Start(ctx, "extractor.extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("extractor.filename", filename),
		attribute.Int("extractor.bytes", len(content)),
	)

	var attempts []ExtractionAttempt
	for _, strategy := range e.strategies {
		result, err := strategy.Extract(ctx, content, filename)
		if err != nil {
			logger.Debug("Extraction strategy failed",
				"strategy", strategy.Name(), "filename", filename, "error", err)
			attempts = append(attempts, ExtractionAttempt{
				Strategy: strategy.Name(),
				Reason:   err.Error(),
			})
			continue
		}

		if countNonWhitespace(result.Text) < minExtractedChars {
			attempts = append(attempts, ExtractionAttempt{
				Strategy: strategy.Name(),
				Reason:   "extracted text below minimum length",
			})
			continue
		}

		result.Method = strategy.Name()
		span.SetAttributes(attribute.String("extractor.method", result.Method))
		logger.Info("Extraction succeeded",
			"strategy", strategy.Name(), "filename", filename, "chars", len(result.Text))
		return result, nil
	}

	span.SetAttributes(attribute.Bool("extractor.failed", true))
	return nil, &ExtractionError{Filename: filename, Attempts: attempts}
}

func countNonWhitespace(text string) int {
	count := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			count++
		}
	}
	return count
}

func hasExtension(filename string, exts ...string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
