package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"reelforge/internal/adapter/repo"
	"reelforge/internal/domain"
	"reelforge/internal/http/handlers"
	"reelforge/internal/infra"
	"reelforge/internal/infra/credentials"
	"reelforge/internal/pipeline"
	"reelforge/internal/providers/assembly"
	"reelforge/internal/providers/script"
	"reelforge/internal/providers/voice"
	"reelforge/internal/storage"
)

type stores struct {
	Users       domain.UserRepository
	Videos      domain.VideoRepository
	Credentials *credentials.Store
	Checks      map[string]handlers.HealthCheck
	pool        *pgxpool.Pool
}

func (s *stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// openStores selects PostgreSQL when DATABASE_URL is set and process memory
// otherwise.
func openStores(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*stores, error) {
	if cfg.InMemory() {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory stores")
		mem := repo.NewMemoryStore()
		return &stores{Users: mem.Users(), Videos: mem.Videos()}, nil
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runner := infra.NewSQLRunner(pool, infra.Component(logger, "sql"))
	return &stores{
		Users:       repo.NewUserRepository(runner),
		Videos:      repo.NewVideoRepository(runner),
		Credentials: credentials.NewStore(runner),
		Checks: map[string]handlers.HealthCheck{
			"database": func(ctx context.Context) error { return pool.Ping(ctx) },
		},
		pool: pool,
	}, nil
}

type providerSet struct {
	Script    pipeline.ScriptGenerator
	Voice     pipeline.VoiceGenerator
	Assembler pipeline.Assembler
	closers   []func() error
}

func (p *providerSet) Close() {
	for _, c := range p.closers {
		_ = c()
	}
}

func buildProviders(ctx context.Context, cfg *infra.Config, creds *credentials.Store, artifacts storage.Store, logger infra.Logger) (*providerSet, error) {
	set := &providerSet{}
	var err error
	if set.Script, err = buildScript(ctx, cfg, creds, logger, set); err != nil {
		return nil, err
	}
	if set.Voice, err = buildVoice(ctx, cfg, creds, artifacts, logger); err != nil {
		return nil, err
	}
	if set.Assembler, err = buildAssembler(ctx, cfg, creds, artifacts); err != nil {
		return nil, err
	}
	return set, nil
}

func buildScript(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger infra.Logger, set *providerSet) (pipeline.ScriptGenerator, error) {
	gen, err := buildScriptProvider(ctx, cfg, creds, logger, set)
	if err != nil || cfg.ScriptCacheTable == "" {
		return gen, err
	}
	cache, err := script.NewDynamoCache(cfg.ScriptCacheTable, cfg.DynamoDBRegion, cfg.ScriptCacheTTL)
	if err != nil {
		return nil, err
	}
	return script.NewCachedGenerator(gen, cache, infra.Component(logger, "script_cache")), nil
}

func buildScriptProvider(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger infra.Logger, set *providerSet) (script.Generator, error) {
	log := infra.Component(logger, "script")
	static := script.NewStaticGenerator()
	var fallback script.Generator
	if cfg.ScriptFallback {
		fallback = static
	}
	onFallback := func(reason string, err error) {
		log.Warn().Err(err).Str("reason", reason).Msg("script provider fell back to templates")
	}

	switch cfg.ScriptProvider {
	case "", "static":
		return static, nil
	case "openai":
		key, err := creds.Resolve(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		return script.NewOpenAIGenerator(script.OpenAIOptions{
			APIKey:       key,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			HTTPClient:   &http.Client{Timeout: 60 * time.Second},
			Fallback:     fallback,
			OnFallback:   onFallback,
			OnWarning: func(reason, detail string) {
				log.Warn().Str("reason", reason).Str("detail", detail).Msg("openai warning")
			},
		})
	case "gemini":
		key, err := creds.Resolve(ctx, credentials.ProviderGemini, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		gen, err := script.NewGeminiGenerator(ctx, script.GeminiOptions{
			APIKey:     key,
			Model:      cfg.GeminiModel,
			Fallback:   fallback,
			OnFallback: onFallback,
		})
		if err != nil {
			return nil, err
		}
		set.closers = append(set.closers, gen.Close)
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown SCRIPT_PROVIDER %q", cfg.ScriptProvider)
	}
}

func buildVoice(ctx context.Context, cfg *infra.Config, creds *credentials.Store, artifacts storage.Store, logger infra.Logger) (pipeline.VoiceGenerator, error) {
	switch cfg.VoiceProvider {
	case "", "synthetic":
		return voice.NewSyntheticGenerator(artifacts)
	case "elevenlabs":
		key, err := creds.Resolve(ctx, credentials.ProviderElevenLabs, cfg.ElevenLabsAPIKey)
		if err != nil {
			return nil, err
		}
		return voice.NewElevenLabsGenerator(voice.ElevenLabsOptions{
			APIKeys: strings.Split(key, ","),
			VoiceID: cfg.ElevenLabsVoiceID,
			Model:   cfg.ElevenLabsModel,
			BaseURL: cfg.ElevenLabsBaseURL,
			Store:   artifacts,
			Logger:  infra.Component(logger, "voice"),
		})
	default:
		return nil, fmt.Errorf("unknown VOICE_PROVIDER %q", cfg.VoiceProvider)
	}
}

func buildAssembler(ctx context.Context, cfg *infra.Config, creds *credentials.Store, artifacts storage.Store) (pipeline.Assembler, error) {
	switch cfg.AssemblyProvider {
	case "", "synthetic":
		return assembly.NewSyntheticAssembler(assembly.SyntheticOptions{Store: artifacts}), nil
	case "http":
		key, err := creds.Resolve(ctx, credentials.ProviderAssembly, cfg.AssemblyAPIKey)
		if err != nil {
			return nil, err
		}
		return assembly.NewHTTPAssembler(assembly.HTTPOptions{BaseURL: cfg.AssemblyBaseURL, APIKey: key})
	default:
		return nil, fmt.Errorf("unknown ASSEMBLY_PROVIDER %q", cfg.AssemblyProvider)
	}
}
