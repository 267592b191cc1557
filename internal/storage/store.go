// Package storage persists generated media artifacts and returns the URL
// they are served from.
package storage

import (
	"context"
	"fmt"
	"strings"
)

// Store persists an artifact under key and returns its public URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Config selects and configures a Store implementation.
type Config struct {
	Driver  string
	Path    string
	BaseURL string
	Bucket  string
	Region  string
}

// New builds the configured store.
func New(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "filesystem":
		return NewFileStore(cfg.Path, cfg.BaseURL)
	case "s3":
		return NewS3Store(cfg.Bucket, cfg.Region, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
