package script

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"reelforge/internal/domain"
	"reelforge/internal/infra"
)

// Cache stores finished scripts by request fingerprint.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, script string) error
}

// CachedGenerator serves repeated requests from a Cache. Cache errors are
// logged and never fail the request.
type CachedGenerator struct {
	next   Generator
	cache  Cache
	logger infra.Logger
}

func NewCachedGenerator(next Generator, cache Cache, logger infra.Logger) *CachedGenerator {
	return &CachedGenerator{next: next, cache: cache, logger: logger}
}

func (c *CachedGenerator) GenerateScript(ctx context.Context, req domain.ScriptRequest) (string, error) {
	key := CacheKey(req)
	script, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("cache_key", key).Msg("script cache read failed")
	} else if ok && strings.TrimSpace(script) != "" {
		c.logger.Debug().Str("cache_key", key).Msg("script cache hit")
		return script, nil
	}

	script, err = c.next.GenerateScript(ctx, req)
	if err != nil {
		return "", err
	}
	if err := c.cache.Put(ctx, key, script); err != nil {
		c.logger.Warn().Err(err).Str("cache_key", key).Msg("script cache write failed")
	}
	return script, nil
}

// CacheKey fingerprints the fields that shape a script. Topic case and
// surrounding whitespace are ignored.
func CacheKey(req domain.ScriptRequest) string {
	h := sha256.New()
	for _, part := range []string{
		strings.ToLower(strings.Join(strings.Fields(req.Topic), " ")),
		req.Style,
		req.DurationBucket,
		req.Locale,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

var _ Generator = (*CachedGenerator)(nil)
