package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"reelforge/internal/domain"
	"reelforge/internal/i18n"
	"reelforge/internal/infra"
	"reelforge/internal/infra/google"
	"reelforge/internal/middleware"
	"reelforge/internal/pipeline"
)

// Pipeline is the orchestrator surface the handlers drive.
type Pipeline interface {
	StartScript(ctx context.Context, userID string, in pipeline.ScriptInput) (*domain.Video, error)
	RetryScript(ctx context.Context, videoID string) (*domain.Video, error)
	StartVoice(ctx context.Context, videoID string) (*domain.Video, error)
	StartAssembly(ctx context.Context, videoID, userID string) (pipeline.AssemblyTicket, error)
	PollStatus(ctx context.Context, videoID string) (domain.Snapshot, error)
	GetVideo(ctx context.Context, userID, videoID string) (*domain.Video, error)
	ListVideos(ctx context.Context, userID string, limit int) ([]domain.Video, error)
	Reset(ctx context.Context, videoID string) (*domain.Video, error)
	GenerateVideo(ctx context.Context, userID string, in pipeline.ScriptInput) (pipeline.AssemblyTicket, error)
}

// IdentityVerifier validates a third-party ID token. When set, sessions are
// only issued against a verified identity.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, token string) (google.Identity, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type App struct {
	Pipeline       Pipeline
	Users          domain.UserRepository
	Identity       IdentityVerifier
	Translator     *i18n.Translator
	Logger         infra.Logger
	JWTSecret      string
	SessionTTL     time.Duration
	DefaultCredits int
	Checks         map[string]HealthCheck
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// error writes {"error":{code,message}} with the message localized for the
// request. extra keys are merged into the top-level body.
func (a *App) error(w http.ResponseWriter, r *http.Request, status int, code string, data map[string]any, extra map[string]any) {
	locale := middleware.LocaleFromContext(r.Context())
	body := map[string]any{
		"error": errorBody{Code: code, Message: a.Translator.Message(locale, code, data)},
	}
	for k, v := range extra {
		body[k] = v
	}
	a.json(w, status, body)
}

// AuthError adapts error for middleware.AuthJWT.
func (a *App) AuthError(w http.ResponseWriter, r *http.Request, status int, code string) {
	a.error(w, r, status, code, nil, nil)
}

// fail maps a domain error to its HTTP status and code.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, extra map[string]any) {
	var (
		verr   *domain.ValidationError
		serr   *domain.StateError
		perr   *domain.ProviderError
		data   map[string]any
		code   string
		status int
	)
	switch {
	case errors.As(err, &verr):
		status, code = http.StatusBadRequest, "validation_failed"
		detail := verr.Reason
		if verr.Field != "" {
			detail = verr.Field + " " + verr.Reason
		}
		data = map[string]any{"Detail": detail}
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "validation_failed"
		data = map[string]any{"Detail": err.Error()}
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.As(err, &serr):
		status, code = http.StatusConflict, "invalid_state"
		data = map[string]any{"Status": string(serr.Status)}
	case errors.Is(err, domain.ErrInvalidState):
		status, code = http.StatusConflict, "invalid_state"
		data = map[string]any{"Status": "busy"}
	case errors.Is(err, domain.ErrInsufficientCredits):
		status, code = http.StatusPaymentRequired, "insufficient_credits"
	case errors.As(err, &perr):
		status, code = http.StatusBadGateway, "provider_failure"
		data = map[string]any{"Stage": string(perr.Stage)}
	default:
		status, code = http.StatusInternalServerError, "internal_error"
	}
	log := a.Logger.Warn()
	if status >= http.StatusInternalServerError {
		log = a.Logger.Error()
	}
	log.Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Int("status", status).
		Str("code", code).
		Msg("request failed")
	a.error(w, r, status, code, data, extra)
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// decode reads an optional JSON body into v. An empty body is not an error.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, r, http.StatusBadRequest, "invalid_json", nil, nil)
		return false
	}
	return true
}
