package taxonomy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/storefrontlab/catalog-crawler/internal/httpx"
)

// Embedder turns texts into vectors. One call may carry many inputs; the
// result is index-aligned with the input slice.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint. Transient failures are
// retried with the shared backoff policy.
type OpenAIEmbedder struct {
	apiKey string
	model  string
	url    string
	client *http.Client
	retry  *httpx.RetryPolicy
}

// NewOpenAIEmbedder builds the embedder. A nil retry policy falls back to the
// package defaults.
func NewOpenAIEmbedder(apiKey, model, url string, client *http.Client, retry *httpx.RetryPolicy) *OpenAIEmbedder {
	if client == nil {
		client = http.DefaultClient
	}
	if retry == nil {
		retry = httpx.NewRetryPolicy(0, 0, 0)
	}
	return &OpenAIEmbedder{
		apiKey: apiKey,
		model:  model,
		url:    url,
		client: client,
		retry:  retry,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed requests vectors for texts, preserving input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	var parsed embeddingResponse
	err = e.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build embedding request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			return fmt.Errorf("call embedding endpoint: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024*1024))
		if err != nil {
			return fmt.Errorf("read embedding response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("embedding endpoint status %d: %s", resp.StatusCode, excerpt(body))
		}
		parsed = embeddingResponse{}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("decode embedding response: %w", err)
		}
		if parsed.Error != nil {
			return fmt.Errorf("embedding endpoint error: %s", parsed.Error.Message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(parsed.Data))
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float64, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func excerpt(body []byte) string {
	const limit = 256
	if len(body) > limit {
		body = body[:limit]
	}
	return string(body)
}
