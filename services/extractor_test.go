package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type fakeStrategy struct {
	name string
	text string
	err  error
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Extract(ctx context.Context, content []byte, filename string) (*ExtractionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ExtractionResult{Text: f.text, Pages: 1}, nil
}

func TestExtractorFallsBackThroughChain(t *testing.T) {
	extractor := NewExtractor(
		&fakeStrategy{name: "first", err: fmt.Errorf("cannot parse")},
		&fakeStrategy{name: "second", text: strings.Repeat("usable extracted text ", 10)},
		&fakeStrategy{name: "third", text: "should never be reached"},
	)

	result, err := extractor.Extract(context.Background(), []byte("raw"), "file.pdf")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Method != "second" {
		t.Errorf("expected second strategy to win, got %q", result.Method)
	}
}

func TestExtractorRejectsShortOutput(t *testing.T) {
	extractor := NewExtractor(
		&fakeStrategy{name: "thin", text: "too short"},
		&fakeStrategy{name: "full", text: strings.Repeat("enough text to pass the threshold ", 5)},
	)

	result, err := extractor.Extract(context.Background(), []byte("raw"), "file.pdf")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Method != "full" {
		t.Errorf("short output must not count as success, got method %q", result.Method)
	}
}

func TestExtractorTotalFailure(t *testing.T) {
	extractor := NewExtractor(
		&fakeStrategy{name: "a", err: fmt.Errorf("bad header")},
		&fakeStrategy{name: "b", text: "tiny"},
	)

	_, err := extractor.Extract(context.Background(), []byte("raw"), "broken.bin")
	if err == nil {
		t.Fatal("expected failure when every strategy fails")
	}

	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected ExtractionError, got %T", err)
	}
	if len(extractionErr.Attempts) != 2 {
		t.Fatalf("expected 2 recorded attempts, got %d", len(extractionErr.Attempts))
	}
	if extractionErr.Attempts[0].Strategy != "a" || extractionErr.Attempts[1].Strategy != "b" {
		t.Errorf("attempts out of order: %+v", extractionErr.Attempts)
	}
	if !strings.Contains(err.Error(), "bad header") {
		t.Errorf("error should carry per-strategy reasons, got %q", err.Error())
	}
}

func TestPlaintextStrategy(t *testing.T) {
	strategy := &PlaintextStrategy{}

	t.Run("accepts utf8 text", func(t *testing.T) {
		text := strings.Repeat("Plain text documents pass straight through. ", 5)
		result, err := strategy.Extract(context.Background(), []byte(text), "notes.txt")
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if result.Text != text {
			t.Error("plaintext must pass content through unchanged")
		}
	})

	t.Run("rejects invalid utf8", func(t *testing.T) {
		if _, err := strategy.Extract(context.Background(), []byte{0xff, 0xfe, 0xfd}, "blob"); err == nil {
			t.Error("expected rejection of invalid UTF-8")
		}
	})

	t.Run("rejects binary-looking content", func(t *testing.T) {
		content := make([]byte, 100)
		for i := range content {
			content[i] = byte(i % 30) // mostly control characters
		}
		if _, err := strategy.Extract(context.Background(), content, "blob"); err == nil {
			t.Error("expected rejection of control-character content")
		}
	})
}

func TestStructuredStrategyRejectsNonSpreadsheetGarbage(t *testing.T) {
	strategy := &StructuredStrategy{}
	if _, err := strategy.Extract(context.Background(), []byte("not a spreadsheet"), "data.xlsx"); err == nil {
		t.Error("expected failure for invalid xlsx payload")
	}
}
