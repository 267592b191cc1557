package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"reelforge/internal/domain"
)

const defaultGeminiModel = "gemini-1.5-flash"

type GeminiOptions struct {
	APIKey     string
	Model      string
	Fallback   Generator
	OnFallback func(reason string, err error)
}

// contentGenerator is the slice of *genai.GenerativeModel the generator uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type GeminiGenerator struct {
	client     *genai.Client
	model      contentGenerator
	fallback   Generator
	onFallback func(reason string, err error)
}

// NewGeminiGenerator opens a genai client for the configured model.
func NewGeminiGenerator(ctx context.Context, opts GeminiOptions) (*GeminiGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(strings.TrimSpace(opts.APIKey)))
	if err != nil {
		return nil, fmt.Errorf("could not create new genai client: %w", err)
	}
	model := client.GenerativeModel(coalesce(opts.Model, defaultGeminiModel))
	model.SetTemperature(0.7)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text("You write narration scripts for short vertical videos and only respond with valid JSON."))

	g := newGeminiGenerator(model, opts)
	g.client = client
	return g, nil
}

func newGeminiGenerator(model contentGenerator, opts GeminiOptions) *GeminiGenerator {
	return &GeminiGenerator{model: model, fallback: opts.Fallback, onFallback: opts.OnFallback}
}

func (g *GeminiGenerator) GenerateScript(ctx context.Context, req domain.ScriptRequest) (string, error) {
	res, err := g.model.GenerateContent(ctx, genai.Text(buildScriptPrompt(req)))
	if err != nil {
		return g.useFallback(ctx, req, "generate_content", err)
	}
	raw, err := extractText(res)
	if err != nil {
		return g.useFallback(ctx, req, "empty_response", err)
	}
	text, err := parseScript(raw)
	if err != nil {
		return g.useFallback(ctx, req, "parse_payload", err)
	}
	return text, nil
}

// Name identifies the provider in logs.
func (g *GeminiGenerator) Name() string { return geminiProviderName }

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *GeminiGenerator) useFallback(ctx context.Context, req domain.ScriptRequest, reason string, cause error) (string, error) {
	if g.onFallback != nil {
		g.onFallback(reason, cause)
	}
	if g.fallback == nil || ctx.Err() != nil {
		return "", fmt.Errorf("gemini %s: %w", reason, cause)
	}
	return g.fallback.GenerateScript(ctx, req)
}

func extractText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no content")
	}
	var sb strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini response did not contain text")
	}
	return sb.String(), nil
}

var _ Generator = (*GeminiGenerator)(nil)
