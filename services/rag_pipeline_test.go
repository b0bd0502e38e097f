package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"docanalyzer-backend/internal/vectorstore"
	"docanalyzer-backend/models"
)

// bagEmbedder assigns each distinct content token its own dimension and
// embeds text as token counts. Texts with no shared vocabulary get exactly
// zero cosine similarity, which makes relevance behavior predictable.
type bagEmbedder struct {
	mu   sync.Mutex
	dims map[string]int
}

func newBagEmbedder() *bagEmbedder {
	return &bagEmbedder{dims: make(map[string]int)}
}

func (be *bagEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	be.mu.Lock()
	defer be.mu.Unlock()

	const dim = 512
	vec := make([]float32, dim)
	for _, token := range contentTokens(text) {
		idx, ok := be.dims[token]
		if !ok {
			idx = len(be.dims) % dim
			be.dims[token] = idx
		}
		vec[idx]++
	}
	return vec, nil
}

func (be *bagEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := be.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

type fixedExpander struct{ variants []string }

func (fe fixedExpander) Expand(ctx context.Context, query string) []string {
	return fe.variants
}

type failingEmbedder struct{ err error }

func (fe *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fe.err
}

func (fe *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fe.err
}

func buildTestIndex(t *testing.T, embedder *bagEmbedder, store *vectorstore.Store, collection, text string) []models.DocumentChunk {
	t.Helper()

	chunker, err := NewChunker(models.ChunkingConfig{ChunkSize: 1000, Overlap: 200})
	if err != nil {
		t.Fatal(err)
	}
	chunks := chunker.ChunkText("testdoc", text)
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}

	entries := make([]vectorstore.Entry, len(chunks))
	for i, chunk := range chunks {
		vec, err := embedder.Embed(context.Background(), chunk.Text)
		if err != nil {
			t.Fatal(err)
		}
		entries[i] = vectorstore.Entry{
			ChunkID: chunk.ChunkID,
			Order:   chunk.Order,
			Text:    chunk.Text,
			Vector:  vec,
		}
	}
	if err := store.Build(collection, entries); err != nil {
		t.Fatal(err)
	}
	return chunks
}

// syntheticReport is a multi-chunk document with one sentence the revenue
// question must find.
func syntheticReport() string {
	var sb strings.Builder
	sb.WriteString(strings.Repeat("The company operates manufacturing facilities across several regions. "+
		"Production capacity expanded during the period under review. ", 20))
	sb.WriteString("Total revenue increased 12% year over year. ")
	sb.WriteString(strings.Repeat("Employee headcount remained stable and retention improved slightly. "+
		"The board met four times during the reporting period. ", 20))
	return sb.String()
}

func TestPipelineFindsRevenueSentence(t *testing.T) {
	embedder := newBagEmbedder()
	store := vectorstore.New()
	buildTestIndex(t, embedder, store, "doc_e2e", syntheticReport())

	pipeline := NewRAGPipeline(store, embedder, StaticExpander{}, PipelineConfig{
		TopKPerVariant: 20,
		ContextChunks:  3,
		MinSimilarity:  0.15,
	})

	result, err := pipeline.Retrieve(context.Background(), "doc_e2e", "What happened to revenue?")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	if !strings.Contains(result.Context, "Total revenue increased 12% year over year.") {
		t.Error("selected context must contain the revenue sentence")
	}
	if len(result.Chunks) == 0 || len(result.Chunks) > 3 {
		t.Errorf("expected 1 to 3 selected chunks, got %d", len(result.Chunks))
	}
	if len(result.ChunkIDs) != len(result.Chunks) {
		t.Errorf("chunk id list out of sync: %d ids for %d chunks", len(result.ChunkIDs), len(result.Chunks))
	}
}

func TestPipelineIsDeterministic(t *testing.T) {
	embedder := newBagEmbedder()
	store := vectorstore.New()
	buildTestIndex(t, embedder, store, "doc_det", syntheticReport())

	pipeline := NewRAGPipeline(store, embedder, StaticExpander{}, PipelineConfig{
		TopKPerVariant: 20,
		ContextChunks:  3,
		MinSimilarity:  0.15,
	})

	first, err := pipeline.Retrieve(context.Background(), "doc_det", "What happened to revenue?")
	if err != nil {
		t.Fatal(err)
	}
	second, err := pipeline.Retrieve(context.Background(), "doc_det", "What happened to revenue?")
	if err != nil {
		t.Fatal(err)
	}

	if strings.Join(first.ChunkIDs, ",") != strings.Join(second.ChunkIDs, ",") {
		t.Errorf("runs disagree: %v vs %v", first.ChunkIDs, second.ChunkIDs)
	}
}

func TestPipelineTieBreakByPosition(t *testing.T) {
	embedder := newBagEmbedder()
	store := vectorstore.New()

	// Identical texts embed identically, so rerank scores tie exactly and
	// the earlier chunk must win.
	text := "quarterly revenue results exceeded expectations"
	vec, err := embedder.Embed(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	entries := []vectorstore.Entry{
		{ChunkID: "d_chunk_2", Order: 2, Text: text, Vector: vec},
		{ChunkID: "d_chunk_0", Order: 0, Text: text, Vector: vec},
		{ChunkID: "d_chunk_1", Order: 1, Text: text, Vector: vec},
	}
	if err := store.Build("doc_tie", entries); err != nil {
		t.Fatal(err)
	}

	pipeline := NewRAGPipeline(store, embedder, StaticExpander{}, PipelineConfig{
		TopKPerVariant: 20,
		ContextChunks:  3,
		MinSimilarity:  0.15,
	})

	result, err := pipeline.Retrieve(context.Background(), "doc_tie", "revenue results")
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"d_chunk_0", "d_chunk_1", "d_chunk_2"} {
		if result.Chunks[i].ChunkID != want {
			t.Errorf("position %d: got %s, want %s", i, result.Chunks[i].ChunkID, want)
		}
	}
}

func TestPipelineContextInDocumentOrder(t *testing.T) {
	embedder := newBagEmbedder()
	store := vectorstore.New()

	// The strongest match sits late in the document, a weaker one early.
	// The context must still read front to back.
	early := "Revenue guidance was mentioned briefly alongside operations."
	late := "Revenue grew sharply and revenue targets for revenue were exceeded."
	entries := []vectorstore.Entry{}
	for _, c := range []struct {
		id    string
		order int
		text  string
	}{
		{"d_chunk_5", 5, late},
		{"d_chunk_0", 0, early},
	} {
		vec, err := embedder.Embed(context.Background(), c.text)
		if err != nil {
			t.Fatal(err)
		}
		entries = append(entries, vectorstore.Entry{ChunkID: c.id, Order: c.order, Text: c.text, Vector: vec})
	}
	if err := store.Build("doc_order", entries); err != nil {
		t.Fatal(err)
	}

	pipeline := NewRAGPipeline(store, embedder, StaticExpander{}, PipelineConfig{
		TopKPerVariant: 20,
		ContextChunks:  3,
		MinSimilarity:  0.15,
	})

	result, err := pipeline.Retrieve(context.Background(), "doc_order", "What happened to revenue?")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Chunks) != 2 {
		t.Fatalf("expected both chunks selected, got %d", len(result.Chunks))
	}
	for i, want := range []string{"d_chunk_0", "d_chunk_5"} {
		if result.ChunkIDs[i] != want {
			t.Errorf("position %d: got %s, want %s", i, result.ChunkIDs[i], want)
		}
	}
	if result.Context != early+"\n\n"+late {
		t.Errorf("context not in document order: %q", result.Context)
	}
}

func TestPipelineLexicalMatchesVariantTerms(t *testing.T) {
	embedder := newBagEmbedder()
	store := vectorstore.New()

	// One mention of "income" diluted by enough other vocabulary that no
	// variant clears the semantic floor. Only the rephrased variant shares
	// a term with the chunk, so retrieval depends on scoring its tokens.
	text := "Net income figures appeared once among broad discussion of manufacturing, " +
		"logistics, staffing, facilities, maintenance, procurement, distribution, " +
		"marketing, compliance audits and seasonal planning."
	vec, err := embedder.Embed(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Build("doc_var", []vectorstore.Entry{
		{ChunkID: "d_chunk_0", Order: 0, Text: text, Vector: vec},
	}); err != nil {
		t.Fatal(err)
	}

	expander := fixedExpander{variants: []string{
		"What happened to revenue?",
		"How did income change?",
	}}
	pipeline := NewRAGPipeline(store, embedder, expander, PipelineConfig{
		TopKPerVariant: 20,
		ContextChunks:  3,
		MinSimilarity:  0.15,
	})

	result, err := pipeline.Retrieve(context.Background(), "doc_var", "What happened to revenue?")
	if err != nil {
		t.Fatalf("variant term must retrieve the chunk, got %v", err)
	}
	if len(result.Chunks) != 1 || result.Chunks[0].ChunkID != "d_chunk_0" {
		t.Errorf("expected the income chunk, got %v", result.ChunkIDs)
	}
}

func TestPipelineNoRelevantContext(t *testing.T) {
	embedder := newBagEmbedder()
	store := vectorstore.New()
	buildTestIndex(t, embedder, store, "doc_adv", syntheticReport())

	pipeline := NewRAGPipeline(store, embedder, StaticExpander{}, PipelineConfig{
		TopKPerVariant: 20,
		ContextChunks:  3,
		MinSimilarity:  0.15,
	})

	// Vocabulary entirely disjoint from the document
	_, err := pipeline.Retrieve(context.Background(), "doc_adv", "quantum entanglement photon polarization")
	if !errors.Is(err, ErrNoRelevantContext) {
		t.Fatalf("expected ErrNoRelevantContext, got %v", err)
	}
}

func TestPipelineIndexNotReady(t *testing.T) {
	embedder := newBagEmbedder()
	pipeline := NewRAGPipeline(vectorstore.New(), embedder, StaticExpander{}, PipelineConfig{})

	_, err := pipeline.Retrieve(context.Background(), "doc_missing", "anything at all")
	if !errors.Is(err, vectorstore.ErrIndexNotReady) {
		t.Fatalf("expected ErrIndexNotReady, got %v", err)
	}
}

func TestPipelinePropagatesEmbeddingFailure(t *testing.T) {
	store := vectorstore.New()
	if err := store.Build("doc_x", []vectorstore.Entry{
		{ChunkID: "c", Order: 0, Text: "content", Vector: []float32{1}},
	}); err != nil {
		t.Fatal(err)
	}

	wantErr := errors.New("provider down")
	pipeline := NewRAGPipeline(store, &failingEmbedder{err: wantErr}, StaticExpander{}, PipelineConfig{})

	_, err := pipeline.Retrieve(context.Background(), "doc_x", "question")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected embedding failure to propagate, got %v", err)
	}
}

func TestStaticExpanderVariants(t *testing.T) {
	variants := StaticExpander{}.Expand(context.Background(), "What happened to revenue?")
	if len(variants) < 2 {
		t.Fatalf("expected multiple variants, got %d", len(variants))
	}
	if variants[0] != "What happened to revenue?" {
		t.Errorf("original question must come first, got %q", variants[0])
	}

	mentionsRevenue := 0
	for _, v := range variants {
		if strings.Contains(strings.ToLower(v), "revenue") {
			mentionsRevenue++
		}
	}
	if mentionsRevenue == 0 {
		t.Error("expansion lost the key query term")
	}
}

func TestLexicalScore(t *testing.T) {
	query := contentTokens("What happened to revenue?")

	relevant := lexicalScore(query, "Total revenue increased 12% year over year, and revenue growth continued.")
	irrelevant := lexicalScore(query, "The board met four times during the reporting period.")

	if relevant <= 0 {
		t.Errorf("expected positive score for matching chunk, got %f", relevant)
	}
	if irrelevant != 0 {
		t.Errorf("expected zero score for non-matching chunk, got %f", irrelevant)
	}
	if relevant <= irrelevant {
		t.Error("relevant chunk must outscore irrelevant chunk")
	}
}
