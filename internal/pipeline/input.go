package pipeline

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"reelforge/internal/domain"
)

// ScriptInput is what a caller supplies to start a video.
type ScriptInput struct {
	Topic          string `json:"topic" validate:"required,max=500"`
	DurationBucket string `json:"duration" validate:"oneof=5-15 15-20 20-30"`
	Style          string `json:"style" validate:"oneof=tips motivation educational entertainment engaging"`
	AspectRatio    string `json:"aspect_ratio" validate:"oneof=9:16 16:9 1:1"`
	Locale         string `json:"locale" validate:"oneof=en fr"`
}

func (in ScriptInput) withDefaults() ScriptInput {
	in.Topic = strings.TrimSpace(in.Topic)
	in.DurationBucket = defaultString(strings.TrimSpace(in.DurationBucket), domain.DefaultDurationBucket)
	in.Style = defaultString(strings.ToLower(strings.TrimSpace(in.Style)), domain.DefaultStyle)
	in.AspectRatio = defaultString(strings.TrimSpace(in.AspectRatio), domain.DefaultAspectRatio)
	in.Locale = defaultString(strings.ToLower(strings.TrimSpace(in.Locale)), "en")
	return in
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationError(err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return &domain.ValidationError{Reason: err.Error()}
	}
	fe := fields[0]
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "max":
		reason = "must be at most " + fe.Param() + " characters"
	case "oneof":
		reason = "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		reason = "is invalid"
	}
	return &domain.ValidationError{Field: fe.Field(), Reason: reason}
}
