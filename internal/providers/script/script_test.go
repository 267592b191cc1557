package script

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"

	"reelforge/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

var tipsRequest = domain.ScriptRequest{Topic: "3 productivity tips", DurationBucket: domain.DurationMedium, Style: domain.StyleTips, Locale: "en"}

func TestOpenAIGeneratorParsesFencedJSON(t *testing.T) {
	var gotAuth, gotPath string
	gen, err := NewOpenAIGenerator(OpenAIOptions{
		APIKey:  "sk-test",
		BaseURL: "https://llm.example.com/v1/",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			gotAuth = r.Header.Get("Authorization")
			gotPath = r.URL.Path
			return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"`+"```json\\n{\\\"title\\\":\\\"T\\\",\\\"script\\\":\\\"Hook.\\\\n\\\\n\\\\n\\\\nBody.\\\"}\\n```"+`"}}]}`), nil
		})},
	})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}
	text, err := gen.GenerateScript(context.Background(), tipsRequest)
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if text != "Hook.\n\nBody." {
		t.Fatalf("script = %q", text)
	}
	if gotAuth != "Bearer sk-test" || gotPath != "/v1/chat/completions" {
		t.Fatalf("auth=%q path=%q", gotAuth, gotPath)
	}
}

func TestOpenAIGeneratorFallback(t *testing.T) {
	var capturedReason string
	gen, err := NewOpenAIGenerator(OpenAIOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, `{"error":"down"}`), nil
		})},
		Fallback:   NewStaticGenerator(),
		OnFallback: func(reason string, err error) { capturedReason = reason },
	})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}
	text, err := gen.GenerateScript(context.Background(), tipsRequest)
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if !strings.Contains(text, "3 productivity tips") {
		t.Fatalf("fallback script does not mention topic: %q", text)
	}
	if capturedReason != "http_503" {
		t.Fatalf("captured reason = %q, want http_503", capturedReason)
	}
}

func TestOpenAIGeneratorRetriesRateLimit(t *testing.T) {
	calls := 0
	gen, err := NewOpenAIGenerator(OpenAIOptions{
		APIKey:  "dummy",
		Retries: 2,
		Backoff: time.Millisecond,
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return jsonResponse(http.StatusTooManyRequests, `{"error":"slow down"}`), nil
			}
			return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"{\"script\":\"Third time.\"}"}}]}`), nil
		})},
	})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}
	text, err := gen.GenerateScript(context.Background(), tipsRequest)
	if err != nil || text != "Third time." || calls != 3 {
		t.Fatalf("text=%q err=%v calls=%d", text, err, calls)
	}
}

func TestOpenAIGeneratorDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	gen, _ := NewOpenAIGenerator(OpenAIOptions{
		APIKey:  "dummy",
		Retries: 3,
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			return jsonResponse(http.StatusBadRequest, `{"error":"bad"}`), nil
		})},
	})
	_, err := gen.GenerateScript(context.Background(), tipsRequest)
	if err == nil || !strings.Contains(err.Error(), "http_400") || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestOpenAIGeneratorWithoutFallbackFails(t *testing.T) {
	gen, _ := NewOpenAIGenerator(OpenAIOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("boom")
		})},
	})
	if _, err := gen.GenerateScript(context.Background(), tipsRequest); err == nil {
		t.Fatalf("expected error without fallback")
	}
}

func TestNormalizeOpenAIModel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		input  string
		model  string
		reason string
	}{
		{name: "exact_default", input: "gpt-4o-mini", model: "gpt-4o-mini"},
		{name: "alias_short", input: "gpt-3.5", model: "gpt-3.5-turbo", reason: "alias"},
		{name: "alias_spaces", input: "GPT4o Mini", model: "gpt-4o-mini", reason: "alias"},
		{name: "unsupported", input: "gpt-9", model: "gpt-4o-mini", reason: "defaulted"},
		{name: "empty", input: "", model: "gpt-4o-mini"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotModel, gotReason := normalizeOpenAIModel(tc.input)
			if gotModel != tc.model || gotReason != tc.reason {
				t.Fatalf("normalizeOpenAIModel(%q) = %q, %q; want %q, %q", tc.input, gotModel, gotReason, tc.model, tc.reason)
			}
		})
	}
}

type fakeModel struct {
	res *genai.GenerateContentResponse
	err error
}

func (f fakeModel) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	return f.res, f.err
}

func textResponse(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}}}
}

func TestGeminiGenerator(t *testing.T) {
	cases := []struct {
		name     string
		model    fakeModel
		fallback Generator
		want     string
		reason   string
		wantErr  bool
	}{
		{name: "json payload", model: fakeModel{res: textResponse(genai.Text(`{"script":"Bonjour."}`))}, want: "Bonjour."},
		{name: "plain text split across parts", model: fakeModel{res: textResponse(genai.Text("Line one. "), genai.Text("Line two."))}, want: "Line one. Line two."},
		{name: "api error without fallback", model: fakeModel{err: errors.New("quota")}, reason: "generate_content", wantErr: true},
		{name: "empty candidates uses fallback", model: fakeModel{res: &genai.GenerateContentResponse{}}, fallback: NewStaticGenerator(), reason: "empty_response"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var reason string
			gen := newGeminiGenerator(tc.model, GeminiOptions{Fallback: tc.fallback, OnFallback: func(r string, _ error) { reason = r }})
			text, err := gen.GenerateScript(context.Background(), tipsRequest)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
			} else if err != nil {
				t.Fatalf("GenerateScript: %v", err)
			}
			if tc.want != "" && text != tc.want {
				t.Fatalf("script = %q, want %q", text, tc.want)
			}
			if reason != tc.reason {
				t.Fatalf("fallback reason = %q, want %q", reason, tc.reason)
			}
		})
	}
}

func TestStaticGeneratorLocalesAndStyles(t *testing.T) {
	gen := NewStaticGenerator()
	fr, err := gen.GenerateScript(context.Background(), domain.ScriptRequest{Topic: "été productif", Style: domain.StyleMotivation, Locale: "fr", DurationBucket: domain.DurationLong})
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if !strings.HasPrefix(fr, "Été productif commence") || !strings.Contains(fr, "Commencez aujourd'hui") {
		t.Fatalf("french script = %q", fr)
	}
	short, _ := gen.GenerateScript(context.Background(), domain.ScriptRequest{Topic: "FOCUS", Style: "unknown", DurationBucket: domain.DurationShort})
	if !strings.Contains(short, "master focus?") || strings.Contains(short, "Save this") {
		t.Fatalf("short script = %q", short)
	}
	if _, err := gen.GenerateScript(context.Background(), domain.ScriptRequest{Topic: "  "}); err == nil {
		t.Fatalf("expected error for empty topic")
	}
}

func TestParseScript(t *testing.T) {
	if _, err := parseScript("```json\n{\"script\":\"  \"}\n```"); err == nil {
		t.Fatalf("expected error for blank script")
	}
	if got, err := parseScript("Just prose."); err != nil || got != "Just prose." {
		t.Fatalf("parseScript(prose) = %q, %v", got, err)
	}
	if !strings.Contains(buildScriptPrompt(tipsRequest), "under 50 words") {
		t.Fatalf("prompt missing word budget: %s", buildScriptPrompt(tipsRequest))
	}
}
