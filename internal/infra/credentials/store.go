// Package credentials reads and writes provider API tokens kept in the
// integration_tokens table.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"reelforge/internal/infra"
	"reelforge/internal/sqlinline"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
	ProviderAssembly   = "assembly"
)

// Known lists the providers a token may be stored for.
var Known = []string{ProviderGemini, ProviderOpenAI, ProviderElevenLabs, ProviderAssembly}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Entry describes a stored token without exposing it.
type Entry struct {
	Provider  string
	UpdatedAt time.Time
}

// Token returns the stored token, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers the configured value and falls back to the stored token.
func (s *Store) Resolve(ctx context.Context, provider, configured string) (string, error) {
	if v := strings.TrimSpace(configured); v != "" {
		return v, nil
	}
	if s == nil {
		return "", nil
	}
	return s.Token(ctx, provider)
}

// SetToken validates and stores a token for a known provider.
func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !isKnown(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	return s.upsert(ctx, provider, token, map[string]any{"source": "cli"})
}

// List returns the providers that have a stored token.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListIntegrationProviders)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Provider, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

func isKnown(provider string) bool {
	for _, p := range Known {
		if p == provider {
			return true
		}
	}
	return false
}
