package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Timeout policies applied when an assembly attempt exceeds its ceiling.
const (
	TimeoutPolicyFail   = "fail"
	TimeoutPolicyRefund = "refund"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	DBMaxConns     int
	JWTSecret      string
	DefaultLocale  string
	GeoIPDBPath    string
	GoogleClientID string
	DefaultCredits int

	StorageDriver  string
	StoragePath    string
	StorageBaseURL string
	S3Bucket       string
	S3Region       string

	ScriptProvider string
	ScriptFallback bool
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	OpenAIOrg      string

	// ScriptCacheTable enables the DynamoDB script cache when set.
	ScriptCacheTable string
	ScriptCacheTTL   time.Duration
	DynamoDBRegion   string

	VoiceProvider     string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModel   string
	ElevenLabsBaseURL string

	AssemblyProvider     string
	AssemblyBaseURL      string
	AssemblyAPIKey       string
	AssemblyPollInterval time.Duration
	AssemblyTimeout      time.Duration
	TimeoutPolicy        string
	RefundOnFailure      bool
	SupervisorPoolSize   int

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           port,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBMaxConns:     getEnvInt("DB_MAX_CONNS", 10),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		DefaultLocale:  strings.ToLower(getEnv("DEFAULT_LOCALE", "en")),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),
		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),
		DefaultCredits: getEnvInt("DEFAULT_CREDITS", 3),

		StorageDriver:  strings.ToLower(getEnv("STORAGE_DRIVER", "filesystem")),
		StoragePath:    getEnv("STORAGE_PATH", "./data/media"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3Region:       getEnv("S3_REGION", "us-east-1"),

		ScriptProvider: strings.ToLower(getEnv("SCRIPT_PROVIDER", "static")),
		ScriptFallback: getEnvBool("SCRIPT_FALLBACK", true),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:      os.Getenv("OPENAI_ORG"),

		ScriptCacheTable: os.Getenv("SCRIPT_CACHE_TABLE"),
		ScriptCacheTTL:   time.Minute * time.Duration(getEnvInt("SCRIPT_CACHE_TTL_MINUTES", 1440)),
		DynamoDBRegion:   getEnv("DYNAMODB_REGION", getEnv("S3_REGION", "us-east-1")),

		VoiceProvider:     strings.ToLower(getEnv("VOICE_PROVIDER", "synthetic")),
		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsModel:   getEnv("ELEVENLABS_MODEL", "eleven_multilingual_v2"),
		ElevenLabsBaseURL: getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),

		AssemblyProvider:     strings.ToLower(getEnv("ASSEMBLY_PROVIDER", "synthetic")),
		AssemblyBaseURL:      os.Getenv("ASSEMBLY_BASE_URL"),
		AssemblyAPIKey:       os.Getenv("ASSEMBLY_API_KEY"),
		AssemblyPollInterval: time.Millisecond * time.Duration(getEnvInt("ASSEMBLY_POLL_INTERVAL_MS", 2000)),
		AssemblyTimeout:      time.Second * time.Duration(getEnvInt("ASSEMBLY_TIMEOUT_SECONDS", 300)),
		TimeoutPolicy:        strings.ToLower(getEnv("TIMEOUT_POLICY", TimeoutPolicyFail)),
		RefundOnFailure:      getEnvBool("REFUND_ON_FAILURE", false),
		SupervisorPoolSize:   getEnvInt("SUPERVISOR_POOL_SIZE", 256),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.TimeoutPolicy {
	case TimeoutPolicyFail, TimeoutPolicyRefund:
	default:
		return nil, fmt.Errorf("TIMEOUT_POLICY must be %q or %q, got %q", TimeoutPolicyFail, TimeoutPolicyRefund, cfg.TimeoutPolicy)
	}
	if cfg.AssemblyPollInterval <= 0 || cfg.AssemblyTimeout <= 0 {
		return nil, fmt.Errorf("assembly poll interval and timeout must be positive")
	}
	if cfg.AssemblyTimeout < cfg.AssemblyPollInterval {
		return nil, fmt.Errorf("ASSEMBLY_TIMEOUT_SECONDS must not be shorter than the poll interval")
	}
	if cfg.StorageDriver == "s3" && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
	}
	if cfg.AssemblyProvider == "http" && cfg.AssemblyBaseURL == "" {
		return nil, fmt.Errorf("ASSEMBLY_BASE_URL is required when ASSEMBLY_PROVIDER=http")
	}
	if cfg.DefaultCredits < 0 {
		cfg.DefaultCredits = 0
	}

	return cfg, nil
}

// InMemory reports whether no database is configured.
func (c *Config) InMemory() bool {
	return strings.TrimSpace(c.DatabaseURL) == ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
