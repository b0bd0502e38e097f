package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// ErrGenerationUnavailable signals that the generation backend is refusing
// calls right now. Retryable by the client.
var ErrGenerationUnavailable = errors.New("answer generation unavailable")

type GeminiClient struct {
	apiKey       string
	modelName    string
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter
	client       *genai.Client
	tier         string
}

type TokenCounter struct {
	mu              sync.Mutex
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
	limits          RateLimits
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

// AnswerHints carry document profile fields into the answer prompt so the
// model knows what kind of document it is reading.
type AnswerHints struct {
	DocumentType string
	Themes       []string
	Purpose      string
}

func NewGeminiClient(apiKey, modelName, tier string) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	limits := getRateLimits(tier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), maxInt(limits.RPM/10, 1))

	return &GeminiClient{
		apiKey:       apiKey,
		modelName:    modelName,
		breaker:      breaker,
		rateLimiter:  rateLimiter,
		tokenCounter: &TokenCounter{limits: limits},
		client:       client,
		tier:         tier,
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// GenerateAnswer answers a question about a document using the selected
// context chunks. The model is instructed to answer from the context only.
func (gc *GeminiClient) GenerateAnswer(ctx context.Context, question string, contextChunks []string, hints AnswerHints) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_answer")
	defer span.End()

	estimatedTokens := estimateTokens(question, contextChunks)
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.Int("gemini.context_chunks", len(contextChunks)),
		attribute.String("gemini.model", gc.modelName),
	)

	if !gc.tokenCounter.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", errors.New("rate limit exceeded: wait before retry")
	}

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", err
	}

	prompt := buildAnswerPrompt(question, contextChunks, hints)

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.modelName)
		model.SetTemperature(0.3)
		model.SetMaxOutputTokens(2048)

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			span.SetAttributes(attribute.String("gemini.error_message", err.Error()))
			return nil, err
		}

		actualTokens := extractTokenUsage(resp)
		gc.tokenCounter.RecordUsage(actualTokens, 1)
		span.SetAttributes(attribute.Int("gemini.actual_tokens", actualTokens))

		return resp, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", generationError(err)
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return responseText(result.(*genai.GenerateContentResponse)), nil
}

// ExpandQuery asks the model for short rephrasings of the question. Failures
// are returned to the caller, who falls back to template expansion.
func (gc *GeminiClient) ExpandQuery(ctx context.Context, question string, n int) ([]string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.expand_query")
	defer span.End()

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Rewrite the following question %d different ways to improve document search recall. "+
			"Return one rewrite per line with no numbering or extra text.\n\nQuestion: %s", n, question)

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.modelName)
		model.SetTemperature(0.8)
		model.SetMaxOutputTokens(512)
		return model.GenerateContent(ctx, genai.Text(prompt))
	})
	if err != nil {
		return nil, err
	}

	var variants []string
	for _, line := range strings.Split(responseText(result.(*genai.GenerateContentResponse)), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			variants = append(variants, line)
		}
		if len(variants) == n {
			break
		}
	}
	span.SetAttributes(attribute.Int("gemini.expansion_variants", len(variants)))
	return variants, nil
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()

	// Reset counters if time windows expired
	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}

	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	limits := tc.limits
	if limits.RPM == 0 {
		limits = getRateLimits("free")
	}

	if tc.minuteRequests+requests > limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > limits.RPD {
		return false
	}

	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

// Rough estimation: 1 token is about 4 characters
func estimateTokens(prompt string, chunks []string) int {
	fullText := prompt
	for _, chunk := range chunks {
		fullText += "\n" + chunk
	}
	return len(fullText) / 4
}

func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}

	estimated := len(responseText(resp)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func buildAnswerPrompt(question string, contextChunks []string, hints AnswerHints) string {
	var sb strings.Builder

	sb.WriteString("You are answering questions about an uploaded document.\n")
	if hints.DocumentType != "" && hints.DocumentType != "unknown" {
		fmt.Fprintf(&sb, "Document type: %s\n", strings.ReplaceAll(hints.DocumentType, "_", " "))
	}
	if len(hints.Themes) > 0 {
		fmt.Fprintf(&sb, "Main themes: %s\n", strings.Join(hints.Themes, ", "))
	}
	if hints.Purpose != "" {
		fmt.Fprintf(&sb, "Purpose: %s\n", hints.Purpose)
	}
	sb.WriteString("\nAnswer using only the context below. If the context does not contain the answer, say so.\n\n")

	for i, chunk := range contextChunks {
		fmt.Fprintf(&sb, "Context %d:\n%s\n\n", i+1, chunk)
	}

	fmt.Fprintf(&sb, "Question: %s", question)
	return sb.String()
}

// generationError maps circuit breaker refusals to the retryable sentinel.
// Other errors pass through unchanged.
func generationError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	return err
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
