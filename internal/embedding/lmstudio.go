package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LMStudioProvider calls an LM Studio (or any OpenAI-compatible) HTTP
// embeddings endpoint. Adapted from the teacher's internal/memory's
// LMStudioEmbedding: same request/response shapes, generalized to the
// Provider interface and given a context-aware request so callers can
// bound it the way they bound subprocess invocations.
type LMStudioProvider struct {
	baseURL string
	model   string
	client  *http.Client
	dims    int
}

// NewLMStudioProvider builds a provider against baseURL (e.g.
// "http://localhost:1234/v1") using model for the request body.
func NewLMStudioProvider(baseURL, model string) *LMStudioProvider {
	return &LMStudioProvider{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
		dims:    Dimensions,
	}
}

type lmStudioRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type lmStudioResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (p *LMStudioProvider) Embed(text string) ([]float32, error) {
	return p.embedCtx(context.Background(), text)
}

func (p *LMStudioProvider) embedCtx(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(lmStudioRequest{Input: text, Model: p.model})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding api error: %s: %s", resp.Status, string(respBody))
	}

	var parsed lmStudioResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding api returned no data")
	}

	v := parsed.Data[0].Embedding
	p.dims = len(v)
	L2Normalize(v)
	return v, nil
}

func (p *LMStudioProvider) EmbedBatch(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := p.Embed(text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (p *LMStudioProvider) Dims() int { return p.dims }
