package utils

import (
	"strings"
	"testing"
)

func TestCompressTextRoundTrip(t *testing.T) {
	text := strings.Repeat("quarterly revenue increased fifteen percent. ", 40)

	compressed, algorithm, err := CompressText(text)
	if err != nil {
		t.Fatalf("CompressText failed: %v", err)
	}
	if algorithm != CompressionGzip {
		t.Errorf("expected gzip for large text, got %s", algorithm)
	}
	if len(compressed) >= len(text) {
		t.Errorf("compression did not shrink repetitive text: %d >= %d", len(compressed), len(text))
	}

	restored, err := DecompressText(compressed, algorithm)
	if err != nil {
		t.Fatalf("DecompressText failed: %v", err)
	}
	if restored != text {
		t.Error("round trip did not restore original text")
	}
}

func TestSmallTextSkipsCompression(t *testing.T) {
	text := "short"

	compressed, algorithm, err := CompressText(text)
	if err != nil {
		t.Fatalf("CompressText failed: %v", err)
	}
	if algorithm != CompressionNone {
		t.Errorf("expected none for short text, got %s", algorithm)
	}
	if string(compressed) != text {
		t.Error("uncompressed text should pass through unchanged")
	}
}

func TestDecompressUnknownAlgorithm(t *testing.T) {
	if _, err := DecompressData([]byte("x"), CompressionAlgorithm("lz4")); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}
