package ai

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"docanalyzer-backend/internal/logger"
)

// ErrEmbeddingUnavailable is returned when the embedding provider cannot be
// reached or rejects the request. Callers must not substitute zero vectors.
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// Embedder produces fixed-dimension vectors for text. All vectors returned by
// one Embedder instance share the same dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GeminiEmbedder calls the Google text embedding API, with an optional Redis
// cache keyed by model and content hash. Embeddings are deterministic per
// model, so cached entries never go stale within a model version.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	cache  *redis.Client
	ttl    time.Duration
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, cache *redis.Client) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{
		client: client,
		model:  model,
		cache:  cache,
		ttl:    7 * 24 * time.Hour,
	}, nil
}

func (ge *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := ge.cacheGet(ctx, text); ok {
		return vec, nil
	}

	model := ge.client.EmbeddingModel(ge.model)
	resp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", ErrEmbeddingUnavailable)
	}

	ge.cacheSet(ctx, text, resp.Embedding.Values)
	return resp.Embedding.Values, nil
}

// EmbedBatch embeds texts one request per text, preserving order. A single
// failure aborts the whole batch so callers never index partial vectors.
func (ge *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := ge.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding %d of %d failed: %w", i+1, len(texts), err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (ge *GeminiEmbedder) Close() error {
	if ge.client != nil {
		return ge.client.Close()
	}
	return nil
}

func (ge *GeminiEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + ge.model + ":" + base64.RawURLEncoding.EncodeToString(sum[:])
}

func (ge *GeminiEmbedder) cacheGet(ctx context.Context, text string) ([]float32, bool) {
	if ge.cache == nil {
		return nil, false
	}
	raw, err := ge.cache.Get(ctx, ge.cacheKey(text)).Bytes()
	if err != nil {
		return nil, false
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false
	}
	return vec, true
}

func (ge *GeminiEmbedder) cacheSet(ctx context.Context, text string, vec []float32) {
	if ge.cache == nil {
		return
	}
	if err := ge.cache.Set(ctx, ge.cacheKey(text), encodeVector(vec), ge.ttl).Err(); err != nil {
		logger.Debug("Embedding cache write failed", "error", err)
	}
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("malformed cached vector: %d bytes", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec, nil
}
