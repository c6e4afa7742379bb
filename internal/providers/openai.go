// Package providers implements LLM backends for the schema.Completer
// interface. Only OpenAI-compatible chat completion endpoints are supported;
// everything the memory layers need is plain text in, plain text out.
package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/driftwhale/driftwhale/internal/schema"
)

// OpenAICompleter makes direct HTTP calls to any OpenAI-compatible endpoint.
type OpenAICompleter struct {
	apiKey       string
	apiBase      string
	defaultModel string
	httpClient   *http.Client
}

// NewOpenAICompleter constructs a completer from raw config values.
func NewOpenAICompleter(apiKey, apiBase, defaultModel string) *OpenAICompleter {
	base := strings.TrimRight(apiBase, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &OpenAICompleter{
		apiKey:       apiKey,
		apiBase:      base,
		defaultModel: defaultModel,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *OpenAICompleter) DefaultModel() string { return p.defaultModel }

// Complete implements schema.Completer.
func (p *OpenAICompleter) Complete(ctx context.Context, messages schema.Messages, opts schema.ChatOptions) (schema.Completion, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := map[string]any{
		"model":       model,
		"messages":    wireMessages(messages),
		"max_tokens":  maxTokens,
		"temperature": opts.Temperature,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return schema.Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return schema.Completion{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return schema.Completion{}, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return schema.Completion{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return schema.Completion{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, friendlyHTTPError(resp.StatusCode, raw))
	}

	return parseCompletion(raw)
}

// ListModels queries the /models endpoint. Used by the model catalog.
func (p *OpenAICompleter) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("models HTTP request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read models response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, friendlyHTTPError(resp.StatusCode, raw))
	}

	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("parse models response: %w", err)
	}

	out := make([]string, 0, len(body.Data))
	for _, m := range body.Data {
		out = append(out, m.ID)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Wire format

func wireMessages(messages schema.Messages) []map[string]any {
	out := make([]map[string]any, 0, len(messages.Messages))
	for _, m := range messages.Messages {
		wire := map[string]any{
			"role":    m.Role,
			"content": m.Content,
		}
		if m.Role == "assistant" && len(m.ToolCalls) > 0 {
			raw := make([]map[string]any, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				raw[i] = tc.ToWireMap()
			}
			wire["tool_calls"] = raw
		}
		if m.Role == "tool" {
			wire["tool_call_id"] = m.ToolCallID
			wire["name"] = m.ToolName
		}
		out = append(out, wire)
	}
	return out
}

// completionBody is the subset of the chat completion response we care about.
type completionBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func parseCompletion(raw []byte) (schema.Completion, error) {
	var body completionBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return schema.Completion{}, fmt.Errorf("parse completion response: %w", err)
	}
	if len(body.Choices) == 0 {
		return schema.Completion{}, fmt.Errorf("empty choices in response")
	}

	return schema.Completion{
		Text: body.Choices[0].Message.Content,
		Usage: map[string]int{
			"prompt_tokens":     body.Usage.PromptTokens,
			"completion_tokens": body.Usage.CompletionTokens,
			"total_tokens":      body.Usage.TotalTokens,
		},
	}, nil
}

func friendlyHTTPError(code int, body []byte) string {
	if code == http.StatusTooManyRequests {
		return "rate limit exceeded"
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
