package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"reelforge/internal/infra"
	"reelforge/internal/infra/credentials"
)

var envKeys = map[string]string{
	credentials.ProviderGemini:     "GEMINI_API_KEY",
	credentials.ProviderOpenAI:     "OPENAI_API_KEY",
	credentials.ProviderElevenLabs: "ELEVENLABS_API_KEY",
	credentials.ProviderAssembly:   "ASSEMBLY_API_KEY",
}

func main() {
	var (
		keyFlag      string
		providerFlag string
		listFlag     bool
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (fallbacks to environment)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderGemini, "provider to configure ("+strings.Join(credentials.Known, ", ")+")")
	flag.BoolVar(&listFlag, "list", false, "list stored providers and exit")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	if provider == "" {
		provider = credentials.ProviderGemini
	}
	if !listFlag && !slices.Contains(credentials.Known, provider) {
		fmt.Fprintf(os.Stderr, "unsupported provider %q\n", providerFlag)
		os.Exit(1)
	}

	_ = godotenv.Load()
	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envKeys[provider]))
	}
	if !listFlag && key == "" {
		fmt.Fprintf(os.Stderr, "%s API key is required via -key or %s\n", strings.ToUpper(provider), envKeys[provider])
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "apikey").Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	if listFlag {
		entries, err := store.List(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list providers: %v\n", err)
			os.Exit(1)
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\n", e.Provider, e.UpdatedAt.Format(time.RFC3339))
		}
		return
	}

	if err := store.SetToken(ctx, provider, key); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s api key: %v\n", provider, err)
		os.Exit(1)
	}
	fmt.Printf("%s API key stored successfully\n", strings.ToUpper(provider))
}
