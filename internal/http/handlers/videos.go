package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"reelforge/internal/domain"
	"reelforge/internal/middleware"
	"reelforge/internal/pipeline"
)

type videoRequest struct {
	Topic       string `json:"topic"`
	Duration    string `json:"duration"`
	Style       string `json:"style"`
	AspectRatio string `json:"aspect_ratio"`
}

type videoDTO struct {
	ID              string             `json:"id"`
	Topic           string             `json:"topic"`
	Style           string             `json:"style"`
	Duration        string             `json:"duration"`
	DurationSeconds int                `json:"duration_seconds"`
	AspectRatio     string             `json:"aspect_ratio"`
	Locale          string             `json:"locale"`
	Status          domain.VideoStatus `json:"status"`
	Script          string             `json:"script,omitempty"`
	AudioURL        string             `json:"audio_url,omitempty"`
	VideoURL        string             `json:"video_url,omitempty"`
	Attempt         int                `json:"attempt"`
	FailureReason   string             `json:"failure_reason,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

type ticketResponse struct {
	Video            videoDTO `json:"video"`
	RemainingCredits int      `json:"remaining_credits"`
}

func toVideoDTO(v *domain.Video) videoDTO {
	return videoDTO{
		ID:              v.ID,
		Topic:           v.Topic,
		Style:           v.Style,
		Duration:        v.DurationBucket,
		DurationSeconds: v.Duration,
		AspectRatio:     v.AspectRatio,
		Locale:          v.Locale,
		Status:          v.Status,
		Script:          v.Script,
		AudioURL:        v.AudioURL,
		VideoURL:        v.VideoURL,
		Attempt:         v.Attempt,
		FailureReason:   v.FailureReason,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

// withVideo attaches the record to error bodies when the operation got far
// enough to create or load it.
func withVideo(v *domain.Video) map[string]any {
	if v == nil || v.ID == "" {
		return nil
	}
	return map[string]any{"video": toVideoDTO(v)}
}

func (r videoRequest) input(locale string) pipeline.ScriptInput {
	return pipeline.ScriptInput{
		Topic:          r.Topic,
		DurationBucket: r.Duration,
		Style:          r.Style,
		AspectRatio:    r.AspectRatio,
		Locale:         locale,
	}
}

func (a *App) ListVideos(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.fail(w, r, &domain.ValidationError{Field: "limit", Reason: "must be a positive integer"}, nil)
			return
		}
		limit = n
	}
	videos, err := a.Pipeline.ListVideos(r.Context(), a.currentUserID(r), limit)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	items := make([]videoDTO, 0, len(videos))
	for i := range videos {
		items = append(items, toVideoDTO(&videos[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// CreateVideo runs the script stage for a new topic.
func (a *App) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if !a.decode(w, r, &req) {
		return
	}
	video, err := a.Pipeline.StartScript(r.Context(), a.currentUserID(r), req.input(middleware.LocaleFromContext(r.Context())))
	if err != nil {
		a.fail(w, r, err, withVideo(video))
		return
	}
	a.json(w, http.StatusCreated, toVideoDTO(video))
}

// GenerateVideo runs every stage in one call and returns once assembly is
// dispatched.
func (a *App) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if !a.decode(w, r, &req) {
		return
	}
	ticket, err := a.Pipeline.GenerateVideo(r.Context(), a.currentUserID(r), req.input(middleware.LocaleFromContext(r.Context())))
	if err != nil {
		a.fail(w, r, err, withVideo(ticket.Video))
		return
	}
	a.json(w, http.StatusAccepted, ticketResponse{Video: toVideoDTO(ticket.Video), RemainingCredits: ticket.RemainingCredits})
}

func (a *App) GetVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := a.ownedVideo(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, toVideoDTO(video))
}

func (a *App) RetryScript(w http.ResponseWriter, r *http.Request) {
	video, ok := a.ownedVideo(w, r)
	if !ok {
		return
	}
	video, err := a.Pipeline.RetryScript(r.Context(), video.ID)
	if err != nil {
		a.fail(w, r, err, withVideo(video))
		return
	}
	a.json(w, http.StatusOK, toVideoDTO(video))
}

func (a *App) StartVoice(w http.ResponseWriter, r *http.Request) {
	video, ok := a.ownedVideo(w, r)
	if !ok {
		return
	}
	video, err := a.Pipeline.StartVoice(r.Context(), video.ID)
	if err != nil {
		a.fail(w, r, err, withVideo(video))
		return
	}
	a.json(w, http.StatusOK, toVideoDTO(video))
}

func (a *App) StartAssembly(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "video_id")
	ticket, err := a.Pipeline.StartAssembly(r.Context(), videoID, a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err, withVideo(ticket.Video))
		return
	}
	a.json(w, http.StatusAccepted, ticketResponse{Video: toVideoDTO(ticket.Video), RemainingCredits: ticket.RemainingCredits})
}

func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	video, ok := a.ownedVideo(w, r)
	if !ok {
		return
	}
	snap, err := a.Pipeline.PollStatus(r.Context(), video.ID)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, snap)
}

func (a *App) ResetVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := a.ownedVideo(w, r)
	if !ok {
		return
	}
	video, err := a.Pipeline.Reset(r.Context(), video.ID)
	if err != nil {
		a.fail(w, r, err, withVideo(video))
		return
	}
	a.json(w, http.StatusOK, toVideoDTO(video))
}

func (a *App) ownedVideo(w http.ResponseWriter, r *http.Request) (*domain.Video, bool) {
	videoID := chi.URLParam(r, "video_id")
	if videoID == "" {
		a.fail(w, r, &domain.ValidationError{Field: "video_id", Reason: "is required"}, nil)
		return nil, false
	}
	video, err := a.Pipeline.GetVideo(r.Context(), a.currentUserID(r), videoID)
	if err != nil {
		a.fail(w, r, err, nil)
		return nil, false
	}
	return video, true
}
