package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by HEALTHMEM_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("HEALTHMEM_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// Memory backends
const (
	BackendPostgres = "postgres"
	BackendRemote   = "remote"
	BackendLocal    = "local"
)

// MemoryBackend selects where conversation history, preferences and goals
// live. Defaults to "postgres" when DATABASE_URL is set, "local" otherwise.
// Valid values: postgres, remote, local
func MemoryBackend() string {
	b := os.Getenv("MEMORY_BACKEND")
	if b != "" {
		return b
	}
	if DatabaseURL() != "" {
		return BackendPostgres
	}
	return BackendLocal
}

func MemoryServiceURL() string {
	return os.Getenv("MEMORY_SERVICE_URL")
}

func MemoryServiceAPIKey() string {
	return os.Getenv("MEMORY_SERVICE_API_KEY")
}

// MemoryServiceRPS caps outbound calls to the memory service.
// Defaults to 10 if not set.
func MemoryServiceRPS() float64 {
	return floatEnv("MEMORY_SERVICE_RPS", 10)
}

func MemoryServiceBurst() int {
	return intEnv("MEMORY_SERVICE_BURST", 20)
}

// CacheCapacity returns the maximum number of cache entries.
// Defaults to 1000 if not set.
func CacheCapacity() int {
	return intEnv("CACHE_CAPACITY", 1000)
}

func CacheDefaultTTL() time.Duration {
	return durationEnv("CACHE_DEFAULT_TTL", 5*time.Minute)
}

func ContextCacheTTL() time.Duration {
	return durationEnv("CONTEXT_CACHE_TTL", 2*time.Minute)
}

func SearchCacheTTL() time.Duration {
	return durationEnv("SEARCH_CACHE_TTL", 5*time.Minute)
}

// ProviderTimeout bounds each individual provider call made while
// assembling a context. Defaults to 3s.
func ProviderTimeout() time.Duration {
	return durationEnv("PROVIDER_TIMEOUT", 3*time.Second)
}

func MaxContextLength() int {
	return intEnv("MAX_CONTEXT_LENGTH", 500)
}

// RetentionDays is how long conversation turns are kept. Zero disables
// retention.
func RetentionDays() int {
	days, err := strconv.Atoi(os.Getenv("RETENTION_DAYS"))
	if err != nil || days < 0 {
		return 0
	}
	return days
}

// APIKey is the static key required on /v1 routes. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

// LLMProvider returns the configured summarization provider.
// Defaults to "mock" if not set.
// Valid values: openai, anthropic, gemini, cerebras, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "mock"
	}
	return p
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "openai" if not set.
// Valid values: openai, mock
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	return floatEnv("RATE_LIMIT_RPS", 100)
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return intEnv("RATE_LIMIT_BURST", 20)
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func intEnv(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func floatEnv(key string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

// durationEnv accepts Go duration strings ("90s", "2m") or plain seconds.
func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}
