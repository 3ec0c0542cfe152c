package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPBackend posts a generation request for one model to a JSON endpoint.
type HTTPBackend struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewHTTPBackend(endpoint, model string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPBackend{endpoint: endpoint, model: model, client: client}
}

// NewHTTPBackends returns one backend per model, in order.
func NewHTTPBackends(endpoint string, models []string, timeout time.Duration) []Backend {
	client := &http.Client{Timeout: timeout}
	out := make([]Backend, 0, len(models))
	for _, m := range models {
		if m == "" {
			continue
		}
		out = append(out, NewHTTPBackend(endpoint, m, client))
	}
	return out
}

func (b *HTTPBackend) Name() string { return b.model }

type generateRequest struct {
	Model       string `json:"model"`
	Kind        Kind   `json:"kind"`
	SourceImage string `json:"sourceImage"`
	Style       string `json:"style,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
}

type generateResponse struct {
	MediaURL string `json:"mediaUrl"`
	Error    string `json:"error,omitempty"`
}

func (b *HTTPBackend) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:       b.model,
		Kind:        req.Kind,
		SourceImage: req.SourceImage,
		Style:       req.Style,
		Prompt:      req.Prompt,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call backend: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out generateResponse
	_ = json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: %s", ErrQuotaExceeded, out.Error)
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("backend returned %d: %s", resp.StatusCode, out.Error)
	case out.MediaURL == "":
		return "", fmt.Errorf("backend returned no media")
	}

	return out.MediaURL, nil
}
