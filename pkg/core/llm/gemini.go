package llm

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// Gemini generates replies with the Gemini API.
type Gemini struct {
	client          *genai.Client
	model           string
	maxOutputTokens int32
}

// GeminiOption configures NewGemini.
type GeminiOption func(*geminiOptions)

type geminiOptions struct {
	model           string
	baseURL         string
	httpClient      *http.Client
	maxOutputTokens int32
}

// WithGeminiModel overrides DefaultModel.
func WithGeminiModel(model string) GeminiOption {
	return func(o *geminiOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithGeminiBaseURL points the client at a different endpoint.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(o *geminiOptions) { o.baseURL = url }
}

// WithGeminiHTTPClient sets the HTTP client for API requests.
func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(o *geminiOptions) { o.httpClient = c }
}

// WithGeminiMaxOutputTokens caps the reply length.
func WithGeminiMaxOutputTokens(n int) GeminiOption {
	return func(o *geminiOptions) { o.maxOutputTokens = int32(n) }
}

// NewGemini creates a Gemini generator for the given API key.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	o := geminiOptions{model: DefaultModel}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if o.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: o.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client, model: o.model, maxOutputTokens: o.maxOutputTokens}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	var cfg *genai.GenerateContentConfig
	if g.maxOutputTokens > 0 {
		cfg = &genai.GenerateContentConfig{MaxOutputTokens: g.maxOutputTokens}
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return clean(resp.Text())
}
