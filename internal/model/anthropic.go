// Package model talks to the Anthropic Messages API over SSE.
package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fakeyudi/tandem/internal/turn"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"
	defaultTimeout = 10 * time.Minute
)

// AnthropicClient streams completions from the Anthropic Messages API.
// It implements turn.StreamClient.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *zap.Logger
}

// Option customizes an AnthropicClient.
type Option func(*AnthropicClient)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *AnthropicClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *AnthropicClient) { c.httpClient = hc }
}

// NewAnthropicClient builds a streaming client for the given model.
func NewAnthropicClient(apiKey, model string, log *zap.Logger, opts ...Option) *AnthropicClient {
	if log == nil {
		log = zap.NewNop()
	}
	c := &AnthropicClient{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model         string       `json:"model"`
	MaxTokens     int          `json:"max_tokens"`
	System        string       `json:"system,omitempty"`
	Messages      []apiMessage `json:"messages"`
	StopSequences []string     `json:"stop_sequences,omitempty"`
	Stream        bool         `json:"stream"`
}

// streamEvent covers the SSE event shapes we care about.
type streamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type         string `json:"type"`
		Text         string `json:"text,omitempty"`
		StopReason   string `json:"stop_reason,omitempty"`
		StopSequence string `json:"stop_sequence,omitempty"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Stream sends one request and invokes onDelta for each text fragment.
// When req.Prefix is non-empty it is sent as a trailing assistant message,
// so the model resumes mid-reply instead of starting over.
func (c *AnthropicClient) Stream(ctx context.Context, req turn.Request, onDelta func(string)) (turn.Stop, error) {
	if c.apiKey == "" {
		return turn.Stop{}, fmt.Errorf("API key not configured")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	messages := make([]apiMessage, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		messages = append(messages, apiMessage{Role: m.Role, Content: m.Content})
	}
	// The API rejects assistant prefill ending in whitespace.
	if prefix := strings.TrimRight(req.Prefix, " \t\r\n"); prefix != "" {
		messages = append(messages, apiMessage{Role: "assistant", Content: prefix})
	}

	body := apiRequest{
		Model:         c.model,
		MaxTokens:     req.MaxTokens,
		System:        req.System,
		Messages:      messages,
		StopSequences: req.StopSequences,
		Stream:        true,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return turn.Stop{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return turn.Stop{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return turn.Stop{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return turn.Stop{}, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(payload))
	}

	stop, err := c.consume(resp.Body, onDelta)
	if err != nil {
		return turn.Stop{}, err
	}
	c.log.Debug("stream finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.String("stop_reason", stop.Reason.String()),
		zap.String("stop_sequence", stop.Sequence))
	return stop, nil
}

// consume reads SSE lines until the stream ends, forwarding text deltas
// and capturing the final stop reason from the message_delta event.
func (c *AnthropicClient) consume(body io.Reader, onDelta func(string)) (turn.Stop, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	stop := turn.Stop{Reason: turn.StopEndTurn}
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var evt streamEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			continue
		}
		if evt.Error != nil {
			return turn.Stop{}, fmt.Errorf("API error: %s", evt.Error.Message)
		}

		switch evt.Type {
		case "content_block_delta":
			if evt.Delta != nil && evt.Delta.Text != "" {
				onDelta(evt.Delta.Text)
			}
		case "message_delta":
			if evt.Delta == nil {
				continue
			}
			switch evt.Delta.StopReason {
			case "stop_sequence":
				stop = turn.Stop{Reason: turn.StopSequence, Sequence: evt.Delta.StopSequence}
			case "end_turn", "max_tokens":
				stop = turn.Stop{Reason: turn.StopEndTurn}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return turn.Stop{}, fmt.Errorf("reading stream: %w", err)
	}
	return stop, nil
}
