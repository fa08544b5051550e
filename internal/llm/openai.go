package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/scrypster/perspective/pkg/types"
)

// OpenAIClient streams batch generations from the OpenAI chat completions
// API (or any compatible endpoint).
type OpenAIClient struct {
	apiKey         string
	baseURL        string
	model          string
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// OpenAIConfig holds OpenAI client configuration.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (required)
	APIKey string

	// BaseURL is the base URL for the API (default: https://api.openai.com/v1)
	BaseURL string

	// Model is the model name to use (default: gpt-4o-mini)
	Model string
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIStreamChunk is one SSE data payload of a streaming completion.
type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new OpenAI client with the given configuration.
func NewOpenAIClient(config OpenAIConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	return &OpenAIClient{
		apiKey:         config.APIKey,
		baseURL:        config.BaseURL,
		model:          config.Model,
		client:         &http.Client{},
		circuitBreaker: NewCircuitBreaker(),
	}, nil
}

// GenerateBatch starts a streaming batch call and returns the candidate
// channel. The channel closes when the stream ends or ctx is cancelled.
func (c *OpenAIClient) GenerateBatch(ctx context.Context, req BatchRequest) (<-chan types.PoolItem, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.start(ctx, req)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("openai: %w", err)
		}
		return nil, err
	}

	resp := result.(*http.Response)
	out := make(chan types.PoolItem, req.BatchSize)
	go c.consume(ctx, resp, out)
	return out, nil
}

func (c *OpenAIClient) start(ctx context.Context, req BatchRequest) (*http.Response, error) {
	reqBody := openAIChatRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: BuildSystemInstruction(req.Plan)},
			{Role: "user", Content: BuildUserInstruction(req)},
		},
		Temperature: 0.9,
		Stream:      true,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("openai: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

// consume reads the SSE stream, feeds delta fragments to the array parser,
// and emits validated candidates.
func (c *OpenAIClient) consume(ctx context.Context, resp *http.Response, out chan<- types.PoolItem) {
	defer close(out)
	defer resp.Body.Close()

	parser := NewStreamParser()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Printf("WARNING: openai: skipping malformed stream event: %v", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		for _, item := range parser.Feed(chunk.Choices[0].Delta.Content) {
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("WARNING: openai: stream ended with error: %v", err)
	}
}

// GetModel returns the configured model name.
func (c *OpenAIClient) GetModel() string {
	return c.model
}

var _ BatchGenerator = (*OpenAIClient)(nil)
