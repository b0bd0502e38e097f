package vectorstore

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrIndexNotReady is returned by Search when no index exists for the
// requested collection.
var ErrIndexNotReady = errors.New("vector index not ready")

// Entry is one indexed chunk: its stable ID, position in the document, the
// chunk text, and its embedding.
type Entry struct {
	ChunkID string
	Order   int
	Text    string
	Vector  []float32
}

// Result pairs an entry with its cosine similarity to the query vector.
type Result struct {
	Entry Entry
	Score float64
}

// Store holds one in-memory brute-force cosine index per collection. Each
// document gets its own collection, so queries never cross documents. Build
// prepares the new index off to the side and swaps it in under the write
// lock, so readers see either the old complete index or the new one.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]indexedEntry
}

type indexedEntry struct {
	entry Entry
	norm  float64
}

func New() *Store {
	return &Store{collections: make(map[string][]indexedEntry)}
}

// CollectionName returns the canonical collection name for a document ID.
func CollectionName(documentID string) string {
	return "doc_" + documentID
}

// Build replaces the collection's index with one built from entries. Entries
// with an empty vector are rejected; partial indexes are never installed.
func (s *Store) Build(collection string, entries []Entry) error {
	indexed := make([]indexedEntry, 0, len(entries))
	dim := -1
	for _, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("entry %q has no vector", e.ChunkID)
		}
		if dim == -1 {
			dim = len(e.Vector)
		} else if len(e.Vector) != dim {
			return fmt.Errorf("entry %q has dimension %d, want %d", e.ChunkID, len(e.Vector), dim)
		}
		indexed = append(indexed, indexedEntry{entry: e, norm: vectorNorm(e.Vector)})
	}

	s.mu.Lock()
	s.collections[collection] = indexed
	s.mu.Unlock()
	return nil
}

// Search returns the topK entries most similar to the query vector, scored by
// cosine similarity. Ties are broken by chunk order, then chunk ID, so equal
// inputs always produce the same ranking.
func (s *Store) Search(collection string, query []float32, topK int) ([]Result, error) {
	s.mu.RLock()
	indexed, ok := s.collections[collection]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotReady, collection)
	}
	if topK <= 0 {
		return nil, nil
	}

	queryNorm := vectorNorm(query)
	results := make([]Result, 0, len(indexed))
	for _, ie := range indexed {
		results = append(results, Result{
			Entry: ie.entry,
			Score: cosine(query, queryNorm, ie.entry.Vector, ie.norm),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Entry.Order != results[j].Entry.Order {
			return results[i].Entry.Order < results[j].Entry.Order
		}
		return results[i].Entry.ChunkID < results[j].Entry.ChunkID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Entries returns a snapshot of the collection's entries in index order.
func (s *Store) Entries(collection string) ([]Entry, error) {
	s.mu.RLock()
	indexed, ok := s.collections[collection]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotReady, collection)
	}
	entries := make([]Entry, len(indexed))
	for i, ie := range indexed {
		entries[i] = ie.entry
	}
	return entries, nil
}

// Has reports whether an index exists for the collection.
func (s *Store) Has(collection string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection]
	return ok
}

// Drop removes the collection's index if present.
func (s *Store) Drop(collection string) {
	s.mu.Lock()
	delete(s.collections, collection)
	s.mu.Unlock()
}

// List returns the names of all indexed collections.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of entries in the collection, or 0 if absent.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
