package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"reelforge/internal/domain"
	"reelforge/internal/infra/google"
	"reelforge/internal/middleware"
)

const defaultSessionTTL = 24 * time.Hour

type sessionRequest struct {
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	IDToken    string `json:"id_token"`
}

type sessionResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      userProfileDTO `json:"user"`
}

type userProfileDTO struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Credits int    `json:"credits"`
	Locale  string `json:"locale"`
}

// AuthSession creates the user on first sight and returns a signed session
// token. Without an IdentityVerifier the caller-supplied identity is trusted.
func (a *App) AuthSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !a.decode(w, r, &req) {
		return
	}
	if a.Identity != nil {
		token := strings.TrimSpace(req.IDToken)
		if token == "" {
			a.fail(w, r, &domain.ValidationError{Field: "id_token", Reason: "is required"}, nil)
			return
		}
		id, err := a.Identity.VerifyIdentity(r.Context(), token)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("id token rejected")
			code := "invalid_token"
			if errors.Is(err, google.ErrExpired) {
				code = "token_expired"
			}
			a.error(w, r, http.StatusUnauthorized, code, nil, nil)
			return
		}
		req = sessionRequest{ExternalID: "google:" + id.Subject, Email: id.Email, Name: id.Name}
	}
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if req.ExternalID == "" {
		a.fail(w, r, &domain.ValidationError{Field: "external_id", Reason: "is required"}, nil)
		return
	}
	user, err := a.Users.Create(r.Context(), &domain.User{
		ExternalID: req.ExternalID,
		Email:      strings.TrimSpace(req.Email),
		Name:       strings.TrimSpace(req.Name),
		Credits:    a.DefaultCredits,
	})
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	ttl := a.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	token, exp, err := middleware.IssueSession(a.JWTSecret, user.ID, locale, ttl)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.Logger.Info().Str("user_id", user.ID).Msg("session issued")
	a.json(w, http.StatusOK, sessionResponse{Token: token, ExpiresAt: exp, User: profileOf(user, locale)})
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", nil, nil)
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, r, http.StatusNotFound, "user_not_found", nil, nil)
			return
		}
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, profileOf(user, middleware.LocaleFromContext(r.Context())))
}

func profileOf(user *domain.User, locale string) userProfileDTO {
	return userProfileDTO{ID: user.ID, Email: user.Email, Name: user.Name, Credits: user.Credits, Locale: locale}
}
