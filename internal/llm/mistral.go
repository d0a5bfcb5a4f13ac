package llm

import (
	"context"
	"net/http"
	"strings"
)

// MistralProvider implements the Provider interface for Mistral's chat API
type MistralProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// MistralConfig holds configuration for the Mistral provider
type MistralConfig struct {
	APIKey  string
	BaseURL string // default: https://api.mistral.ai
	Model   string // default: mistral-small-latest
}

// NewMistralProvider creates a new Mistral provider
func NewMistralProvider(cfg MistralConfig) *MistralProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mistral.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "mistral-small-latest"
	}

	return &MistralProvider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: newLLMHTTPClient(),
	}
}

func (p *MistralProvider) Name() string {
	return "mistral"
}

func (p *MistralProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	var resp chatResponse
	err := postJSON(ctx, p.httpClient, p.Name(), p.baseURL+"/v1/chat/completions", bearer(p.apiKey), buildChatRequest(req, p.model), &resp)
	if err != nil {
		return nil, err
	}
	return parseChatResponse(&resp), nil
}
