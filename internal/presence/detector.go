package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPDetector posts frames to a face detection service. The service
// replies with {"faces": n}.
type HTTPDetector struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// HTTPDetectorConfig configures an HTTPDetector.
type HTTPDetectorConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration // default: 3s
}

// NewHTTPDetector creates a detector for the given endpoint.
func NewHTTPDetector(cfg HTTPDetectorConfig) *HTTPDetector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &HTTPDetector{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type detectResponse struct {
	Faces int    `json:"faces"`
	Error string `json:"error,omitempty"`
}

// DetectFace implements Detector.
func (d *HTTPDetector) DetectFace(ctx context.Context, f Frame) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(f.Data))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	mediaType := f.MediaType
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	req.Header.Set("Content-Type", mediaType)
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("detector error (status %d): %s", resp.StatusCode, string(body))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return false, fmt.Errorf("detector error: %s", out.Error)
	}
	return out.Faces > 0, nil
}
