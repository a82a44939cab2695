package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiGenerator implements Generator with the Google GenAI SDK.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini generator. baseURL is optional and
// overrides the API endpoint.
func NewGeminiGenerator(ctx context.Context, apiKey, model, baseURL string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required (set GEMINI_API_KEY)")
	}
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = defaultGeminiModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate sends one GenerateContent call.
func (g *GeminiGenerator) Generate(ctx context.Context, r Request) (string, error) {
	model := g.model
	if r.Model != "" && !strings.HasPrefix(r.Model, "gpt-") {
		model = r.Model
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(r.Temperature)),
	}
	if r.MaxTokens > 0 {
		config.MaxOutputTokens = int32(r.MaxTokens)
	}
	if r.System != "" {
		config.SystemInstruction = genai.NewContentFromText(r.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(r.Prompt), config)
	if err != nil {
		return "", geminiError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", fatal("gemini", fmt.Errorf("no text in response"))
	}
	return text, nil
}

func geminiError(err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError("gemini", apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return statusError("gemini", apiErrPtr.Code, apiErrPtr.Message)
	}
	return transportError("gemini", err)
}
