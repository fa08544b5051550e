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

	"github.com/scrypster/perspective/pkg/types"
)

// OllamaClient streams batch generations from a local Ollama instance.
// Call setup is wrapped with circuit breaker protection; the stream itself
// runs on the caller's context.
type OllamaClient struct {
	baseURL        string
	model          string
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model name to use (default: qwen2.5:7b)
	Model string
}

// ollamaGenerateRequest is the request body for /api/generate.
type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

// ollamaGenerateChunk is one NDJSON line of a streaming /api/generate reply.
type ollamaGenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaClient creates a new Ollama client with the given configuration.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "qwen2.5:7b"
	}

	return &OllamaClient{
		baseURL: config.BaseURL,
		model:   config.Model,
		// No client-level timeout: the response is a long-lived stream and
		// the caller's context bounds the whole call.
		client:         &http.Client{},
		circuitBreaker: NewCircuitBreaker(),
	}
}

// GenerateBatch starts a streaming batch call and returns the candidate
// channel. The channel closes when the stream ends or ctx is cancelled.
func (c *OllamaClient) GenerateBatch(ctx context.Context, req BatchRequest) (<-chan types.PoolItem, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.start(ctx, req)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("ollama: %w", err)
		}
		return nil, err
	}

	resp := result.(*http.Response)
	out := make(chan types.PoolItem, req.BatchSize)
	go c.consume(ctx, resp, out)
	return out, nil
}

// start issues the HTTP request and verifies the status line.
func (c *OllamaClient) start(ctx context.Context, req BatchRequest) (*http.Response, error) {
	reqBody := ollamaGenerateRequest{
		Model:  c.model,
		System: BuildSystemInstruction(req.Plan),
		Prompt: BuildUserInstruction(req),
		Stream: true,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

// consume reads the NDJSON chunk stream, feeds the array parser, and emits
// validated candidates until the stream ends or ctx is cancelled.
func (c *OllamaClient) consume(ctx context.Context, resp *http.Response, out chan<- types.PoolItem) {
	defer close(out)
	defer resp.Body.Close()

	parser := NewStreamParser()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var chunk ollamaGenerateChunk
		if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
			log.Printf("WARNING: ollama: skipping malformed stream line: %v", err)
			continue
		}

		for _, item := range parser.Feed(chunk.Response) {
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}

		if chunk.Done {
			break
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("WARNING: ollama: stream ended with error: %v", err)
	}
}

// GetModel returns the configured model name.
func (c *OllamaClient) GetModel() string {
	return c.model
}

// Compile-time assertion.
var _ BatchGenerator = (*OllamaClient)(nil)
