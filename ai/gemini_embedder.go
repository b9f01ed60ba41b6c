package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	geminiEmbedBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

	defaultEmbeddingModel = "text-embedding-004"
	defaultDimensions     = 768

	// The batch endpoint accepts at most 100 requests per call.
	maxBatchSize = 100
)

// EmbeddingRequest represents a request to the Gemini embedding API
type EmbeddingRequest struct {
	Model                string       `json:"model"`
	Content              ContentInput `json:"content"`
	TaskType             string       `json:"taskType,omitempty"`
	OutputDimensionality int          `json:"outputDimensionality,omitempty"`
}

// ContentInput wraps the text parts of an embedding request
type ContentInput struct {
	Parts []PartInput `json:"parts"`
}

// PartInput is a single text part
type PartInput struct {
	Text string `json:"text"`
}

// EmbeddingResponse represents a single embedding response
type EmbeddingResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

type batchEmbeddingRequest struct {
	Requests []EmbeddingRequest `json:"requests"`
}

type batchEmbeddingResponse struct {
	Embeddings []struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
}

// GeminiEmbedder calls the Gemini embedding REST API. Calls are paced by a
// rate limiter and retried with jittered exponential backoff; HTTP 400 and
// 401 fail immediately because retrying them cannot succeed.
type GeminiEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxElapsed time.Duration
}

// EmbedderOption configures a GeminiEmbedder
type EmbedderOption func(*GeminiEmbedder)

// EmbedderWithModel overrides the embedding model
func EmbedderWithModel(model string) EmbedderOption {
	return func(e *GeminiEmbedder) { e.model = model }
}

// EmbedderWithHTTPClient overrides the HTTP client
func EmbedderWithHTTPClient(c *http.Client) EmbedderOption {
	return func(e *GeminiEmbedder) { e.httpClient = c }
}

// EmbedderWithRateLimit sets the request pacing in requests per second
func EmbedderWithRateLimit(rps float64) EmbedderOption {
	return func(e *GeminiEmbedder) { e.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// EmbedderWithBaseURL points the embedder at a different API host
func EmbedderWithBaseURL(url string) EmbedderOption {
	return func(e *GeminiEmbedder) { e.baseURL = url }
}

// EmbedderWithMaxElapsed bounds the total retry time per request
func EmbedderWithMaxElapsed(d time.Duration) EmbedderOption {
	return func(e *GeminiEmbedder) { e.maxElapsed = d }
}

// NewGeminiEmbedder creates an embedder with production defaults
func NewGeminiEmbedder(apiKey string, opts ...EmbedderOption) *GeminiEmbedder {
	e := &GeminiEmbedder{
		apiKey:     apiKey,
		model:      defaultEmbeddingModel,
		dimensions: defaultDimensions,
		baseURL:    geminiEmbedBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
		maxElapsed: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmbedQuery embeds a single query string with the retrieval-query task type.
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	reqBody := EmbeddingRequest{
		Model:                "models/" + e.model,
		Content:              ContentInput{Parts: []PartInput{{Text: text}}},
		TaskType:             "RETRIEVAL_QUERY",
		OutputDimensionality: e.dimensions,
	}
	url := fmt.Sprintf("%s/%s:embedContent?key=%s", e.baseURL, e.model, e.apiKey)

	var resp EmbeddingResponse
	if err := e.post(ctx, url, reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrEmbedding)
	}
	return normalizeVector(resp.Embedding.Values), nil
}

// EmbedDocuments embeds texts with the retrieval-document task type, batching
// up to the API limit per call. The result is index-aligned with texts.
func (e *GeminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := batchEmbeddingRequest{}
		for _, text := range texts[start:end] {
			batch.Requests = append(batch.Requests, EmbeddingRequest{
				Model:                "models/" + e.model,
				Content:              ContentInput{Parts: []PartInput{{Text: text}}},
				TaskType:             "RETRIEVAL_DOCUMENT",
				OutputDimensionality: e.dimensions,
			})
		}
		url := fmt.Sprintf("%s/%s:batchEmbedContents?key=%s", e.baseURL, e.model, e.apiKey)

		var resp batchEmbeddingResponse
		if err := e.post(ctx, url, batch, &resp); err != nil {
			return nil, fmt.Errorf("batch starting at %d: %w", start, err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbedding, len(resp.Embeddings), end-start)
		}
		for _, emb := range resp.Embeddings {
			out = append(out, normalizeVector(emb.Values))
		}
	}
	return out, nil
}

// post sends one JSON request with pacing and retry.
func (e *GeminiEmbedder) post(ctx context.Context, url string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	operation := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEmbedding, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: reading response: %v", ErrEmbedding, err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return json.Unmarshal(data, result)
		case resp.StatusCode == http.StatusBadRequest:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrEmbedding, truncateBody(data)))
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrInvalidKey, truncateBody(data)))
		default:
			log.Printf("Embedding API returned %d, retrying", resp.StatusCode)
			return fmt.Errorf("%w: status %d", ErrEmbedding, resp.StatusCode)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = e.maxElapsed
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

func truncateBody(data []byte) string {
	const limit = 200
	s := string(data)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// normalizeVector scales a vector to unit length so cosine similarity and
// dot product agree.
func normalizeVector(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
