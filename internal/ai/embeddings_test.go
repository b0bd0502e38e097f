package ai

import (
	"context"
	"os"
	"testing"
)

func TestVectorEncodingRoundTrip(t *testing.T) {
	vec := []float32{0.12, -3.4, 0, 1e-7, 42.5}

	decoded, err := decodeVector(encodeVector(vec))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded) != len(vec) {
		t.Fatalf("length mismatch: %d vs %d", len(decoded), len(vec))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Errorf("value %d: got %v, want %v", i, decoded[i], vec[i])
		}
	}
}

func TestDecodeVectorRejectsTruncatedData(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for data not divisible by 4")
	}
}

func TestGeminiEmbedderLive(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set, skipping live embedding test")
	}

	ctx := context.Background()
	embedder, err := NewGeminiEmbedder(ctx, apiKey, "text-embedding-004", nil)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}
	defer embedder.Close()

	first, err := embedder.Embed(ctx, "Total revenue increased 12% year over year.")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("expected a non-empty vector")
	}

	// Embeddings are deterministic per model version
	second, err := embedder.Embed(ctx, "Total revenue increased 12% year over year.")
	if err != nil {
		t.Fatalf("second Embed failed: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("dimension changed between calls: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, first[i], second[i])
		}
	}
}
