package script

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"reelforge/internal/domain"
)

const (
	staticProviderName = "static"
	geminiProviderName = "gemini"
	openAIProviderName = "openai"
)

// wordsPerSecond approximates narration pace for the word budget.
const wordsPerSecond = 2.5

var blankLines = regexp.MustCompile(`\n{3,}`)

type modelScriptPayload struct {
	Script string `json:"script"`
	Title  string `json:"title"`
}

func styleLabel(style string) string {
	switch style {
	case domain.StyleMotivation:
		return "motivational and uplifting"
	case domain.StyleEducational:
		return "educational and precise"
	case domain.StyleEntertainment:
		return "entertaining and playful"
	case domain.StyleEngaging:
		return "engaging with a strong hook"
	default:
		return "practical tips"
	}
}

func languageName(locale string) string {
	if strings.HasPrefix(strings.ToLower(locale), "fr") {
		return "French"
	}
	return "English"
}

func wordBudget(bucket string) int {
	return int(float64(domain.DurationSeconds(bucket)) * wordsPerSecond)
}

func buildScriptPrompt(req domain.ScriptRequest) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Write the narration for a vertical short-form video about %q. ", req.Topic)
	fmt.Fprintf(sb, "Tone: %s. Language: %s. ", styleLabel(req.Style), languageName(req.Locale))
	fmt.Fprintf(sb, "The narration is read aloud in about %d seconds, so keep it under %d words. ", domain.DurationSeconds(req.DurationBucket), wordBudget(req.DurationBucket))
	sb.WriteString("Open with a hook, end with a call to action, no stage directions, no emojis, no hashtags. ")
	sb.WriteString(`Respond strictly with JSON: {"title":string,"script":string}.`)
	return sb.String()
}

// parseScript accepts the JSON payload, optionally fenced, or plain prose.
func parseScript(raw string) (string, error) {
	text := trimCodeFence(raw)
	if text == "" {
		return "", fmt.Errorf("empty payload")
	}
	if strings.HasPrefix(text, "{") {
		var payload modelScriptPayload
		if err := json.Unmarshal([]byte(extractJSONFragment(text)), &payload); err != nil {
			return "", fmt.Errorf("parse script payload: %w", err)
		}
		text = payload.Script
	}
	text = normalizeScript(text)
	if text == "" {
		return "", fmt.Errorf("empty script")
	}
	return text, nil
}

func normalizeScript(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func extractJSONFragment(raw string) string {
	text := trimCodeFence(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
