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

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultModel         = "gpt-4o-mini"
)

// OpenAIGenerator implements Generator for OpenAI's Chat Completions API.
// Any OpenAI-compatible endpoint works through BaseURL.
type OpenAIGenerator struct {
	APIKey  string
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOpenAIGenerator creates a new OpenAI generator.
func NewOpenAIGenerator(apiKey string) *OpenAIGenerator {
	return &OpenAIGenerator{
		APIKey:  apiKey,
		Model:   defaultModel,
		BaseURL: defaultOpenAIBaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate sends one chat completion request.
func (o *OpenAIGenerator) Generate(ctx context.Context, r Request) (string, error) {
	if o.APIKey == "" {
		return "", fatal("openai", fmt.Errorf("API key not configured (set OPENAI_API_KEY)"))
	}

	model := o.Model
	if r.Model != "" {
		model = r.Model
	}

	var msgs []message
	if r.System != "" {
		msgs = append(msgs, message{Role: "system", Content: r.System})
	}
	msgs = append(msgs, message{Role: "user", Content: r.Prompt})

	jsonData, err := json.Marshal(openAIRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	})
	if err != nil {
		return "", fatal("openai", fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fatal("openai", fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", transportError("openai", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError("openai", fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError("openai", resp.StatusCode, string(body))
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fatal("openai", fmt.Errorf("failed to unmarshal response: %w", err))
	}

	if apiResp.Error != nil {
		return "", fatal("openai", fmt.Errorf("OpenAI API error: %s", apiResp.Error.Message))
	}

	if len(apiResp.Choices) == 0 {
		return "", fatal("openai", fmt.Errorf("no completion choices returned"))
	}

	return apiResp.Choices[0].Message.Content, nil
}
