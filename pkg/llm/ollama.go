package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaGenerator implements Generator using a local Ollama API.
type OllamaGenerator struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaGenerator creates a new Ollama generator.
// baseURL is typically "http://localhost:11434"
// model is the model name, e.g. "mistral"
func NewOllamaGenerator(baseURL, model string) *OllamaGenerator {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaGenerator{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 300 * time.Second, // 5 minutes for slow local models
		},
	}
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends one non-streaming generate request.
func (c *OllamaGenerator) Generate(ctx context.Context, r Request) (string, error) {
	model := c.model
	if r.Model != "" {
		model = r.Model
	}

	jsonData, err := json.Marshal(ollamaGenerateRequest{
		Model:  model,
		Prompt: r.Prompt,
		System: r.System,
		Stream: false,
		Options: ollamaOptions{
			Temperature: r.Temperature,
			NumPredict:  r.MaxTokens,
		},
	})
	if err != nil {
		return "", fatal("ollama", fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fatal("ollama", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", transportError("ollama", fmt.Errorf("ollama request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", statusError("ollama", resp.StatusCode, string(body))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fatal("ollama", fmt.Errorf("decode response: %w", err))
	}

	return result.Response, nil
}
