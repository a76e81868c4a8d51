package service

import (
	"bytes"
	"caseprep_backend/internal/config"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// CompletionBackend turns prompt text into model text.
type CompletionBackend interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// NewCompletionBackend picks the backend once, from ai.use_local_model.
func NewCompletionBackend(cfg *config.AIConfig, client *http.Client) CompletionBackend {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.UseLocalModel {
		return NewOllamaBackend(cfg.Local, client)
	}
	return NewOpenAIBackend(cfg.OpenAI, client)
}

type AIChatMessage struct {
	Role string `json:"role"`
	// Content is a string, or a list of content parts for vision requests.
	Content interface{} `json:"content"`
}

type ChatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []AIChatMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAIBackend calls a hosted chat-completions API.
type OpenAIBackend struct {
	config config.OpenAIConfig
	client *http.Client
}

func NewOpenAIBackend(cfg config.OpenAIConfig, client *http.Client) *OpenAIBackend {
	return &OpenAIBackend{config: cfg, client: client}
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Complete(ctx context.Context, prompt string) (string, error) {
	return b.Chat(ctx, ChatCompletionRequest{
		Model:       b.config.Model,
		Messages:    []AIChatMessage{{Role: "user", Content: prompt}},
		Temperature: b.config.Temperature,
		MaxTokens:   b.config.MaxTokens,
	})
}

// Chat sends a raw chat-completions request and returns the first choice.
func (b *OpenAIBackend) Chat(ctx context.Context, reqBody ChatCompletionRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(b.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.config.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", fmt.Errorf("AI API error: %s", result.Error.Message)
	}
	if len(result.Choices) > 0 {
		return result.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("AI returned no choices")
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// OllamaBackend calls a self-hosted model server's generate endpoint.
type OllamaBackend struct {
	config config.LocalAIConfig
	client *http.Client
}

func NewOllamaBackend(cfg config.LocalAIConfig, client *http.Client) *OllamaBackend {
	return &OllamaBackend{config: cfg, client: client}
}

func (b *OllamaBackend) Name() string { return "ollama" }

func (b *OllamaBackend) Complete(ctx context.Context, prompt string) (string, error) {
	jsonData, err := json.Marshal(ollamaGenerateRequest{
		Model:  b.config.Model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": b.config.Temperature,
			"num_predict": b.config.NumPredict,
		},
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(b.config.BaseURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama request failed (status %d): %s", resp.StatusCode, string(body))
	}

	var result ollamaGenerateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama error: %s", result.Error)
	}
	return result.Response, nil
}
