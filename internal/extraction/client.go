package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"horse.fit/cargoscoop/internal/httpx"
)

const (
	// DefaultEndpoint is the OpenAI-compatible API root.
	DefaultEndpoint = "https://api.openai.com/v1"
	DefaultModel    = "gpt-4o-mini"
	DefaultSeed     = 525212
)

// Request is one structured completion call.
type Request struct {
	System     string
	User       string
	SchemaName string
	Schema     json.RawMessage
}

// Completer returns the raw JSON content of a structured completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type ClientConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Seed     int64
	RPS      float64
	Timeout  time.Duration
	Retry    httpx.Policy
}

// ChatClient calls an OpenAI-compatible chat completions endpoint with a
// json_schema response format.
type ChatClient struct {
	endpointURL string
	apiKey      string
	model       string
	seed        int64
	requester   *httpx.Requester
}

func NewChatClient(cfg ClientConfig) *ChatClient {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ChatClient{
		endpointURL: chatCompletionsURL(cfg.Endpoint),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		seed:        cfg.Seed,
		requester: &httpx.Requester{
			Client:  &http.Client{Timeout: timeout},
			Limiter: httpx.NewLimiter(cfg.RPS),
			Policy:  cfg.Retry,
		},
	}
}

// ModelName returns the configured model identifier.
func (c *ChatClient) ModelName() string {
	if c == nil {
		return ""
	}
	return c.model
}

func (c *ChatClient) Complete(ctx context.Context, req Request) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chat client is nil")
	}
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: 0,
		TopP:        1,
		Seed:        c.seed,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormat{
				Name:   req.SchemaName,
				Schema: req.Schema,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal extraction request: %w", err)
	}

	respBody, err := c.requester.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build extraction request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return httpReq, nil
	})
	if err != nil {
		return "", fmt.Errorf("send extraction request: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode extraction response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("extraction response missing choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("extraction response was empty")
	}
	return content, nil
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	TopP           float64        `json:"top_p"`
	Seed           int64          `json:"seed,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type jsonSchemaFormat struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func chatCompletionsURL(endpoint string) string {
	raw := strings.TrimSpace(endpoint)
	if raw == "" {
		raw = DefaultEndpoint
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultEndpoint + "/chat/completions"
	}

	path := strings.TrimRight(parsed.Path, "/")
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		parsed.Path = path
	case strings.HasSuffix(path, "/v1"):
		parsed.Path = path + "/chat/completions"
	case path == "":
		parsed.Path = "/v1/chat/completions"
	default:
		parsed.Path = path + "/v1/chat/completions"
	}
	return parsed.String()
}
