// Package voice turns scripts into narration audio stored as artifacts.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"reelforge/internal/domain"
	"reelforge/internal/infra"
	"reelforge/internal/storage"
)

const elevenLabsDefaultTimeout = 2 * time.Minute

// ErrNoKeys is returned when no API key is configured.
var ErrNoKeys = errors.New("elevenlabs: no api keys configured")

type ElevenLabsOptions struct {
	// APIKeys are tried in order; an auth or quota rejection rotates to the next.
	APIKeys    []string
	VoiceID    string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Store      storage.Store
	Logger     infra.Logger
}

type ElevenLabsGenerator struct {
	keys    *keyRing
	voiceID string
	model   string
	baseURL string
	client  *http.Client
	store   storage.Store
	logger  infra.Logger
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	LanguageCode  string        `json:"language_code,omitempty"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float32 `json:"stability"`
	SimilarityBoost float32 `json:"similarity_boost"`
}

func NewElevenLabsGenerator(opts ElevenLabsOptions) (*ElevenLabsGenerator, error) {
	ring, err := newKeyRing(opts.APIKeys)
	if err != nil {
		return nil, err
	}
	if opts.Store == nil {
		return nil, errors.New("elevenlabs: artifact store is required")
	}
	if strings.TrimSpace(opts.VoiceID) == "" {
		return nil, errors.New("elevenlabs: voice id is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: elevenLabsDefaultTimeout}
	}
	return &ElevenLabsGenerator{
		keys:    ring,
		voiceID: strings.TrimSpace(opts.VoiceID),
		model:   opts.Model,
		baseURL: baseURL,
		client:  client,
		store:   opts.Store,
		logger:  opts.Logger,
	}, nil
}

func (g *ElevenLabsGenerator) GenerateVoice(ctx context.Context, req domain.VoiceRequest) (string, error) {
	payload, err := json.Marshal(ttsRequest{
		Text:          req.Script,
		ModelID:       g.model,
		LanguageCode:  languageCode(req.Locale),
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return "", fmt.Errorf("elevenlabs: encode request: %w", err)
	}
	url := fmt.Sprintf("%s/text-to-speech/%s", g.baseURL, g.voiceID)

	var lastErr error
	for attempt := 0; attempt < g.keys.len(); attempt++ {
		key := g.keys.current()
		audio, status, err := g.synthesize(ctx, url, key, payload)
		if err == nil {
			return g.store.Put(ctx, audioKey(req.VideoID), "audio/mpeg", audio)
		}
		lastErr = err
		if status != http.StatusUnauthorized && status != http.StatusTooManyRequests {
			return "", err
		}
		g.logger.Warn().Int("status", status).Int("key", attempt+1).Msg("elevenlabs: key rejected, rotating")
		g.keys.rotate(key)
	}
	return "", fmt.Errorf("elevenlabs: all api keys rejected: %w", lastErr)
}

func (g *ElevenLabsGenerator) synthesize(ctx context.Context, url, key string, payload []byte) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("xi-api-key", key)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, resp.StatusCode, errors.New("elevenlabs: empty audio")
	}
	return audio, resp.StatusCode, nil
}

func audioKey(videoID string) string {
	return fmt.Sprintf("audio/%s-%d.mp3", videoID, time.Now().UnixNano())
}

func languageCode(locale string) string {
	if strings.HasPrefix(strings.ToLower(locale), "fr") {
		return "fr"
	}
	return "en"
}

// keyRing rotates through API keys. Rotation is keyed on the rejected key
// so concurrent failures advance the ring once.
type keyRing struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

func newKeyRing(keys []string) (*keyRing, error) {
	var cleaned []string
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrNoKeys
	}
	return &keyRing{keys: cleaned}, nil
}

func (r *keyRing) len() int { return len(r.keys) }

func (r *keyRing) current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[r.idx]
}

func (r *keyRing) rotate(rejected string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keys[r.idx] == rejected {
		r.idx = (r.idx + 1) % len(r.keys)
	}
}
