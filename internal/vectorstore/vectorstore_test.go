package vectorstore

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestSearchRanksBySimilarity(t *testing.T) {
	store := New()

	entries := []Entry{
		{ChunkID: "doc1_chunk_0", Order: 0, Text: "alpha", Vector: []float32{1, 0, 0}},
		{ChunkID: "doc1_chunk_1", Order: 1, Text: "beta", Vector: []float32{0, 1, 0}},
		{ChunkID: "doc1_chunk_2", Order: 2, Text: "gamma", Vector: []float32{0.9, 0.1, 0}},
	}
	if err := store.Build("doc_abc", entries); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	results, err := store.Search("doc_abc", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Entry.ChunkID != "doc1_chunk_0" {
		t.Errorf("expected exact match first, got %s", results[0].Entry.ChunkID)
	}
	if results[0].Score < 0.999 {
		t.Errorf("expected near-perfect score for identical vector, got %f", results[0].Score)
	}
	if results[1].Entry.ChunkID != "doc1_chunk_2" {
		t.Errorf("expected close match second, got %s", results[1].Entry.ChunkID)
	}
}

func TestSearchNotReady(t *testing.T) {
	store := New()

	_, err := store.Search("doc_missing", []float32{1, 0}, 5)
	if !errors.Is(err, ErrIndexNotReady) {
		t.Fatalf("expected ErrIndexNotReady, got %v", err)
	}
}

func TestSearchTieBreakByOrder(t *testing.T) {
	store := New()

	// Identical vectors, so scores tie and order decides
	entries := []Entry{
		{ChunkID: "c_3", Order: 3, Vector: []float32{1, 1}},
		{ChunkID: "c_0", Order: 0, Vector: []float32{1, 1}},
		{ChunkID: "c_1", Order: 1, Vector: []float32{1, 1}},
	}
	if err := store.Build("doc_tie", entries); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	results, err := store.Search("doc_tie", []float32{1, 1}, 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for i, want := range []int{0, 1, 3} {
		if results[i].Entry.Order != want {
			t.Errorf("result %d: expected order %d, got %d", i, want, results[i].Entry.Order)
		}
	}
}

func TestBuildRejectsMismatchedDimensions(t *testing.T) {
	store := New()

	err := store.Build("doc_bad", []Entry{
		{ChunkID: "a", Vector: []float32{1, 2, 3}},
		{ChunkID: "b", Vector: []float32{1, 2}},
	})
	if err == nil {
		t.Fatal("expected error for mismatched dimensions")
	}
	if store.Has("doc_bad") {
		t.Error("partial index must not be installed")
	}
}

func TestBuildReplacesAtomically(t *testing.T) {
	store := New()

	old := []Entry{
		{ChunkID: "old_0", Order: 0, Vector: []float32{1, 0}},
		{ChunkID: "old_1", Order: 1, Vector: []float32{0, 1}},
	}
	if err := store.Build("doc_swap", old); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Readers during a rebuild must see a complete index of one generation,
	// never a mix.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				results, err := store.Search("doc_swap", []float32{1, 0}, 10)
				if err != nil {
					t.Errorf("Search failed mid-rebuild: %v", err)
					return
				}
				if len(results) != 2 && len(results) != 3 {
					t.Errorf("saw partial index with %d entries", len(results))
					return
				}
			}
		}()
	}

	for gen := 0; gen < 50; gen++ {
		replacement := []Entry{
			{ChunkID: fmt.Sprintf("new_%d_0", gen), Order: 0, Vector: []float32{1, 0}},
			{ChunkID: fmt.Sprintf("new_%d_1", gen), Order: 1, Vector: []float32{0, 1}},
			{ChunkID: fmt.Sprintf("new_%d_2", gen), Order: 2, Vector: []float32{1, 1}},
		}
		if err := store.Build("doc_swap", replacement); err != nil {
			t.Fatalf("rebuild %d failed: %v", gen, err)
		}
	}
	close(stop)
	wg.Wait()

	if store.Count("doc_swap") != 3 {
		t.Errorf("expected final index with 3 entries, got %d", store.Count("doc_swap"))
	}
}

func TestDropAndList(t *testing.T) {
	store := New()

	for _, name := range []string{"doc_b", "doc_a"} {
		if err := store.Build(name, []Entry{{ChunkID: "x", Vector: []float32{1}}}); err != nil {
			t.Fatalf("Build failed: %v", err)
		}
	}

	names := store.List()
	if len(names) != 2 || names[0] != "doc_a" || names[1] != "doc_b" {
		t.Fatalf("unexpected collections: %v", names)
	}

	store.Drop("doc_a")
	if store.Has("doc_a") {
		t.Error("doc_a should be gone after Drop")
	}
	if !store.Has("doc_b") {
		t.Error("doc_b should be unaffected by dropping doc_a")
	}
}

func TestCollectionName(t *testing.T) {
	if got := CollectionName("65f1a2"); got != "doc_65f1a2" {
		t.Errorf("unexpected collection name %q", got)
	}
}
