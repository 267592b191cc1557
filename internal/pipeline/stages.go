package pipeline

import (
	"context"
	"errors"
	"strings"

	"reelforge/internal/domain"
)

// ScriptGenerator turns a topic into narration text.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, req domain.ScriptRequest) (string, error)
}

// VoiceGenerator renders a script to audio and returns the artifact URL.
type VoiceGenerator interface {
	GenerateVoice(ctx context.Context, req domain.VoiceRequest) (string, error)
}

// Assembler dispatches renders and reports their progress.
type Assembler interface {
	SubmitAssembly(ctx context.Context, req domain.AssemblyRequest) (string, error)
	AssemblyStatus(ctx context.Context, ref string) (domain.AssemblyStatus, error)
}

var errEmptyPayload = errors.New("empty payload")

func generateScript(ctx context.Context, gen ScriptGenerator, req domain.ScriptRequest) (string, error) {
	script, err := gen.GenerateScript(ctx, req)
	return normalize(domain.StageScript, script, err)
}

func generateVoice(ctx context.Context, gen VoiceGenerator, req domain.VoiceRequest) (string, error) {
	url, err := gen.GenerateVoice(ctx, req)
	return normalize(domain.StageVoice, url, err)
}

// normalize folds provider results into a payload or a *domain.ProviderError.
func normalize(stage domain.Stage, payload string, err error) (string, error) {
	if err != nil {
		return "", providerError(stage, err)
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", providerError(stage, errEmptyPayload)
	}
	return payload, nil
}

func providerError(stage domain.Stage, err error) error {
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	return &domain.ProviderError{Stage: stage, Err: err}
}
