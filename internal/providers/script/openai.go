package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelforge/internal/domain"
)

// Generator is the capability every script provider offers.
type Generator interface {
	GenerateScript(ctx context.Context, req domain.ScriptRequest) (string, error)
}

type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	// Retries is how many extra attempts a 429 or 5xx gets. Zero means one.
	Retries int
	Backoff time.Duration
	// Fallback runs when the remote call fails. Nil surfaces the failure.
	Fallback   Generator
	OnFallback func(reason string, err error)
	OnWarning  func(reason, detail string)
}

// OpenAIGenerator asks a chat-completions endpoint for a JSON script.
type OpenAIGenerator struct {
	endpoint     string
	apiKey       string
	model        string
	organization string
	client       *http.Client
	retries      int
	backoff      time.Duration
	fallback     Generator
	onFallback   func(reason string, err error)
}

const (
	openAIDefaultTimeout = 30 * time.Second
	openAIDefaultBackoff = 250 * time.Millisecond
	defaultOpenAIModel   = "gpt-4o-mini"
)

// openAIModels maps accepted spellings onto the model id sent upstream. An
// entry that maps to itself is canonical.
var openAIModels = map[string]string{
	"gpt-4o-mini":            "gpt-4o-mini",
	"gpt-4o":                 "gpt-4o",
	"gpt-3.5-turbo":          "gpt-3.5-turbo",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt4o":                  "gpt-4o",
	"gpt-3.5":                "gpt-3.5-turbo",
	"gpt3.5":                 "gpt-3.5-turbo",
	"gpt-35-turbo":           "gpt-3.5-turbo",
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// statusError carries the upstream status so retry and fallback reasons can
// use it.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openai status %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model, how := normalizeOpenAIModel(opts.Model)
	if how != "" && opts.OnWarning != nil {
		opts.OnWarning("model_"+how, fmt.Sprintf("requested=%s resolved=%s", coalesce(strings.TrimSpace(opts.Model), defaultOpenAIModel), model))
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = 1
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = openAIDefaultBackoff
	}
	return &OpenAIGenerator{
		endpoint:     baseURL + "/chat/completions",
		apiKey:       key,
		model:        model,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
		retries:      retries,
		backoff:      backoff,
		fallback:     opts.Fallback,
		onFallback:   opts.OnFallback,
	}, nil
}

func (o *OpenAIGenerator) GenerateScript(ctx context.Context, req domain.ScriptRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          o.model,
		Temperature:    0.7,
		MaxTokens:      wordBudget(req.DurationBucket) * 4,
		ResponseFormat: &chatFormat{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf("You write %s narration scripts for short vertical videos. Reply with valid JSON only.", languageName(req.Locale))},
			{Role: "user", Content: buildScriptPrompt(req)},
		},
	})
	if err != nil {
		return o.useFallback(ctx, req, "encode_request", err)
	}

	var out *chatResponse
	for attempt := 0; ; attempt++ {
		out, err = o.complete(ctx, body)
		var se *statusError
		if err == nil || !errors.As(err, &se) || !se.retryable() || attempt >= o.retries {
			break
		}
		select {
		case <-ctx.Done():
			return o.useFallback(ctx, req, "canceled", ctx.Err())
		case <-time.After(o.backoff * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return o.useFallback(ctx, req, fmt.Sprintf("http_%d", se.code), err)
		}
		return o.useFallback(ctx, req, "http_request", err)
	}
	if len(out.Choices) == 0 {
		return o.useFallback(ctx, req, "empty_choices", errors.New("no choices"))
	}
	text, err := parseScript(out.Choices[0].Message.Content)
	if err != nil {
		return o.useFallback(ctx, req, "parse_payload", err)
	}
	return text, nil
}

func (o *OpenAIGenerator) complete(ctx context.Context, body []byte) (*chatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Name identifies the provider in logs.
func (o *OpenAIGenerator) Name() string { return openAIProviderName }

func (o *OpenAIGenerator) useFallback(ctx context.Context, req domain.ScriptRequest, reason string, cause error) (string, error) {
	if o.onFallback != nil {
		o.onFallback(reason, cause)
	}
	if o.fallback == nil || ctx.Err() != nil {
		return "", fmt.Errorf("openai %s: %w", reason, cause)
	}
	return o.fallback.GenerateScript(ctx, req)
}

// normalizeOpenAIModel resolves name and reports "alias" or "defaulted" when
// the result differs from the input.
func normalizeOpenAIModel(name string) (string, string) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return defaultOpenAIModel, ""
	}
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	model, ok := openAIModels[key]
	switch {
	case !ok:
		return defaultOpenAIModel, "defaulted"
	case model == key:
		return model, ""
	default:
		return model, "alias"
	}
}

var _ Generator = (*OpenAIGenerator)(nil)
