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

// AnthropicClient streams batch generations from the Anthropic messages API.
type AnthropicClient struct {
	apiKey         string
	baseURL        string
	model          string
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// AnthropicConfig holds Anthropic client configuration.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (required)
	APIKey string

	// BaseURL is the base URL for the API (default: https://api.anthropic.com)
	BaseURL string

	// Model is the model name to use (default: claude-haiku-4-5-20251001)
	Model string
}

type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicStreamEvent is one SSE data payload of a streaming messages reply.
// Only content_block_delta events carry text.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// NewAnthropicClient creates a new Anthropic client with the given configuration.
func NewAnthropicClient(config AnthropicConfig) (*AnthropicClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com"
	}
	if config.Model == "" {
		config.Model = "claude-haiku-4-5-20251001"
	}

	return &AnthropicClient{
		apiKey:         config.APIKey,
		baseURL:        config.BaseURL,
		model:          config.Model,
		client:         &http.Client{},
		circuitBreaker: NewCircuitBreaker(),
	}, nil
}

// GenerateBatch starts a streaming batch call and returns the candidate
// channel. The channel closes when the stream ends or ctx is cancelled.
func (c *AnthropicClient) GenerateBatch(ctx context.Context, req BatchRequest) (<-chan types.PoolItem, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.start(ctx, req)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		return nil, err
	}

	resp := result.(*http.Response)
	out := make(chan types.PoolItem, req.BatchSize)
	go c.consume(ctx, resp, out)
	return out, nil
}

func (c *AnthropicClient) start(ctx context.Context, req BatchRequest) (*http.Response, error) {
	reqBody := anthropicMessagesRequest{
		Model:     c.model,
		MaxTokens: 4096,
		System:    BuildSystemInstruction(req.Plan),
		Messages: []anthropicMessage{
			{Role: "user", Content: BuildUserInstruction(req)},
		},
		Stream: true,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

// consume reads the SSE stream, feeds text deltas to the array parser, and
// emits validated candidates.
func (c *AnthropicClient) consume(ctx context.Context, resp *http.Response, out chan<- types.PoolItem) {
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

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			log.Printf("WARNING: anthropic: skipping malformed stream event: %v", err)
			continue
		}
		if event.Type == "message_stop" {
			break
		}
		if event.Type != "content_block_delta" || event.Delta.Type != "text_delta" {
			continue
		}

		for _, item := range parser.Feed(event.Delta.Text) {
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("WARNING: anthropic: stream ended with error: %v", err)
	}
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

var _ BatchGenerator = (*AnthropicClient)(nil)
