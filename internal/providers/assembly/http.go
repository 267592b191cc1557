// Package assembly dispatches renders that combine script and narration into
// a video, and reports their progress.
package assembly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelforge/internal/domain"
)

const httpDefaultTimeout = 20 * time.Second

type HTTPOptions struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// HTTPAssembler talks to a remote render service: POST /renders submits a
// job and GET /renders/{id} reports its state.
type HTTPAssembler struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type renderRequest struct {
	VideoID     string `json:"video_id"`
	UserID      string `json:"user_id"`
	Attempt     int    `json:"attempt"`
	Script      string `json:"script"`
	AudioURL    string `json:"audio_url"`
	AspectRatio string `json:"aspect_ratio"`
	Duration    int    `json:"duration_seconds"`
}

type renderResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	Error    string `json:"error"`
}

func NewHTTPAssembler(opts HTTPOptions) (*HTTPAssembler, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("assembly: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("assembly: parse base url: %w", err)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: httpDefaultTimeout}
	}
	return &HTTPAssembler{baseURL: base, apiKey: strings.TrimSpace(opts.APIKey), client: client}, nil
}

func (a *HTTPAssembler) SubmitAssembly(ctx context.Context, req domain.AssemblyRequest) (string, error) {
	body, err := json.Marshal(renderRequest{
		VideoID:     req.VideoID,
		UserID:      req.UserID,
		Attempt:     req.Attempt,
		Script:      req.Script,
		AudioURL:    req.AudioURL,
		AspectRatio: req.AspectRatio,
		Duration:    req.Duration,
	})
	if err != nil {
		return "", fmt.Errorf("assembly: encode request: %w", err)
	}
	var out renderResponse
	if err := a.do(ctx, http.MethodPost, a.baseURL+"/renders", body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errors.New("assembly: render service returned no id")
	}
	return out.ID, nil
}

func (a *HTTPAssembler) AssemblyStatus(ctx context.Context, ref string) (domain.AssemblyStatus, error) {
	var out renderResponse
	if err := a.do(ctx, http.MethodGet, a.baseURL+"/renders/"+url.PathEscape(ref), nil, &out); err != nil {
		return domain.AssemblyStatus{}, err
	}
	status := domain.AssemblyStatus{State: mapState(out.Status), VideoURL: strings.TrimSpace(out.VideoURL), Reason: out.Error}
	if status.State == domain.AssemblySucceeded && status.VideoURL == "" {
		status = domain.AssemblyStatus{State: domain.AssemblyFailed, Reason: "render finished without a video url"}
	}
	return status, nil
}

func (a *HTTPAssembler) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("assembly: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("assembly: %s %s: %w", method, endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("assembly: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("assembly: decode response: %w", err)
	}
	return nil
}

func mapState(raw string) domain.AssemblyState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "done", "completed", "succeeded", "success":
		return domain.AssemblySucceeded
	case "failed", "error", "cancelled", "canceled":
		return domain.AssemblyFailed
	case "processing", "rendering", "running":
		return domain.AssemblyRendering
	default:
		return domain.AssemblyQueued
	}
}
