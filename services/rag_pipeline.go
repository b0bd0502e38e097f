package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"docanalyzer-backend/internal/ai"
	"docanalyzer-backend/internal/logger"
	"docanalyzer-backend/internal/vectorstore"
)

// QueryExpander produces search variants for a question. The original
// question is always the first variant.
type QueryExpander interface {
	Expand(ctx context.Context, query string) []string
}

// StaticExpander rewrites the question with fixed templates plus a
// keyword-only variant. Needs no network and always succeeds.
type StaticExpander struct{}

func (StaticExpander) Expand(ctx context.Context, query string) []string {
	variants := []string{
		query,
		fmt.Sprintf("What is %s?", query),
		fmt.Sprintf("Explain %s", query),
		fmt.Sprintf("Tell me about %s", query),
		fmt.Sprintf("Summarize %s", query),
	}
	if keywords := strings.Join(contentTokens(query), " "); keywords != "" && keywords != query {
		variants = append(variants, keywords)
	}
	return variants
}

// GeminiExpander asks the model for paraphrases and falls back to template
// expansion when the call fails. Expansion must never block a query.
type GeminiExpander struct {
	client *ai.GeminiClient
	static StaticExpander
}

func NewGeminiExpander(client *ai.GeminiClient) *GeminiExpander {
	return &GeminiExpander{client: client}
}

func (ge *GeminiExpander) Expand(ctx context.Context, query string) []string {
	rewrites, err := ge.client.ExpandQuery(ctx, query, 4)
	if err != nil || len(rewrites) == 0 {
		logger.Debug("LLM query expansion failed, using templates", "error", err)
		return ge.static.Expand(ctx, query)
	}
	return append([]string{query}, rewrites...)
}

// RetrievedChunk is one chunk selected as answer context.
type RetrievedChunk struct {
	ChunkID string
	Order   int
	Text    string
	Score   float64
}

// RetrievalResult is the query pipeline's output: the selected chunks in
// document order and the assembled context string.
type RetrievalResult struct {
	Chunks   []RetrievedChunk
	ChunkIDs []string
	Context  string
}

// PipelineConfig tunes retrieval breadth and the relevance floor.
type PipelineConfig struct {
	TopKPerVariant int
	ContextChunks  int
	MinSimilarity  float64
}

// RAGPipeline is the read path: expand the question, retrieve candidates per
// variant both semantically and lexically, rerank the union against the
// original question, and select the final context. Pure read path, no
// persistence.
type RAGPipeline struct {
	store    *vectorstore.Store
	embedder ai.Embedder
	expander QueryExpander
	config   PipelineConfig
}

func NewRAGPipeline(store *vectorstore.Store, embedder ai.Embedder, expander QueryExpander, config PipelineConfig) *RAGPipeline {
	if config.TopKPerVariant <= 0 {
		config.TopKPerVariant = 20
	}
	if config.ContextChunks <= 0 {
		config.ContextChunks = 3
	}
	return &RAGPipeline{store: store, embedder: embedder, expander: expander, config: config}
}

type candidate struct {
	entry    vectorstore.Entry
	semantic float64
	lexical  float64
}

// Retrieve runs the full query pipeline against one document's collection.
// Fails with ErrIndexNotReady when the index is absent and ErrNoRelevantContext
// when nothing clears the relevance floor.
func (rp *RAGPipeline) Retrieve(ctx context.Context, collection, query string) (*RetrievalResult, error) {
	tracer := otel.Tracer("rag-pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("pipeline.collection", collection))

	variants := rp.expander.Expand(ctx, query)
	if len(variants) == 0 {
		variants = []string{query}
	}
	span.SetAttributes(attribute.Int("pipeline.variants", len(variants)))

	// The original question's embedding doubles as the rerank signal.
	queryVec, err := rp.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates := make(map[string]*candidate)

	// Semantic retrieval per variant
	for i, variant := range variants {
		vec := queryVec
		if i > 0 {
			vec, err = rp.embedder.Embed(ctx, variant)
			if err != nil {
				return nil, err
			}
		}

		results, err := rp.store.Search(collection, vec, rp.config.TopKPerVariant)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if r.Score < rp.config.MinSimilarity {
				continue
			}
			c, ok := candidates[r.Entry.ChunkID]
			if !ok {
				c = &candidate{entry: r.Entry}
				candidates[r.Entry.ChunkID] = c
			}
			if r.Score > c.semantic {
				c.semantic = r.Score
			}
		}
	}

	// Lexical retrieval per variant over the whole collection. Variants can
	// introduce terms the original question lacks, so each one is scored
	// separately and the best score per chunk is kept.
	entries, err := rp.store.Entries(collection)
	if err != nil {
		return nil, err
	}
	for _, variant := range variants {
		variantTokens := contentTokens(variant)
		if len(variantTokens) == 0 {
			continue
		}
		for _, entry := range entries {
			score := lexicalScore(variantTokens, entry.Text)
			if score <= 0 {
				continue
			}
			c, ok := candidates[entry.ChunkID]
			if !ok {
				c = &candidate{entry: entry}
				candidates[entry.ChunkID] = c
			}
			if score > c.lexical {
				c.lexical = score
			}
		}
	}

	span.SetAttributes(attribute.Int("pipeline.candidates", len(candidates)))
	if len(candidates) == 0 {
		return nil, ErrNoRelevantContext
	}

	// Rerank the union by cosine similarity to the original question
	ranked := make([]RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, RetrievedChunk{
			ChunkID: c.entry.ChunkID,
			Order:   c.entry.Order,
			Text:    c.entry.Text,
			Score:   cosineSimilarity(queryVec, c.entry.Vector),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Order != ranked[j].Order {
			return ranked[i].Order < ranked[j].Order
		}
		return ranked[i].ChunkID < ranked[j].ChunkID
	})

	if len(ranked) > rp.config.ContextChunks {
		ranked = ranked[:rp.config.ContextChunks]
	}

	// The selected chunks are assembled in document order, not rank order,
	// so the context reads as a coherent excerpt of the source.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Order != ranked[j].Order {
			return ranked[i].Order < ranked[j].Order
		}
		return ranked[i].ChunkID < ranked[j].ChunkID
	})

	result := &RetrievalResult{Chunks: ranked}
	var contextParts []string
	for _, chunk := range ranked {
		result.ChunkIDs = append(result.ChunkIDs, chunk.ChunkID)
		contextParts = append(contextParts, chunk.Text)
	}
	result.Context = strings.Join(contextParts, "\n\n")

	span.SetAttributes(attribute.Int("pipeline.selected", len(ranked)))
	return result, nil
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"how": true, "in": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "or": true, "that": true, "the": true, "to": true, "was": true,
	"were": true, "what": true, "when": true, "where": true, "which": true,
	"who": true, "why": true, "will": true, "with": true, "happened": true,
	"about": true, "tell": true, "me": true, "explain": true,
}

// contentTokens lowercases, splits on non-letters/digits, and drops
// stopwords and single characters.
func contentTokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// lexicalScore counts query-term occurrences in the chunk, normalized by
// chunk length so long chunks do not dominate on raw frequency.
func lexicalScore(queryTokens []string, chunkText string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	chunkTokens := contentTokens(chunkText)
	if len(chunkTokens) == 0 {
		return 0
	}
	freq := make(map[string]int, len(chunkTokens))
	for _, t := range chunkTokens {
		freq[t]++
	}

	matches := 0
	for _, qt := range queryTokens {
		matches += freq[qt]
	}
	if matches == 0 {
		return 0
	}
	return float64(matches) / (float64(len(queryTokens)) * math.Log(float64(len(chunkTokens))+math.E))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
