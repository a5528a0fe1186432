package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ModerationAction is what the relay does with a flagged verdict.
type ModerationAction string

const (
	ActionBlock ModerationAction = "block"
	ActionWarn  ModerationAction = "warn"
	ActionLog   ModerationAction = "log"
)

// Moderation is built once at startup and shared read-only by every request.
type Moderation struct {
	Enabled        bool
	ModerateInput  bool
	ModerateOutput bool
	Action         ModerationAction
	APIKey         string
	BaseURL        string
}

// InputActive reports whether user messages go through the gate.
func (m Moderation) InputActive() bool {
	return m.Enabled && m.ModerateInput
}

// OutputActive reports whether generated text goes through the gate.
func (m Moderation) OutputActive() bool {
	return m.Enabled && m.ModerateOutput
}

type Config struct {
	// Server
	Port string
	Env  string

	// Logging
	LogLevel string
	LogJSON  bool

	// Gemini AI
	GeminiAPIKey         string
	GeminiModel          string
	GeminiConcurrentReqs int
	AgentMaxToolRounds   int

	// Moderation
	Moderation Moderation

	// Redis page cache (optional)
	RedisURL      string
	FetchCacheTTL time.Duration

	// Postgres incident log (optional)
	DatabaseURL string

	// HTTP
	ChatRateLimitPerMin int
	CORSOrigins         []string
}

// DefaultGeminiModel must be a model that accepts function-call turns without
// thought signatures; generative-ai-go has no field to carry them.
const DefaultGeminiModel = "gemini-2.5-flash"

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogJSON:              getEnvAsBoolOrDefault("LOG_JSON", false),
		GeminiAPIKey:         mustGetEnv("GEMINI_API_KEY"),
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", DefaultGeminiModel),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		AgentMaxToolRounds:   getEnvAsIntOrDefault("AGENT_MAX_TOOL_ROUNDS", 8),
		Moderation: Moderation{
			Enabled:        getEnvAsBoolOrDefault("MODERATION_ENABLED", true),
			ModerateInput:  getEnvAsBoolOrDefault("MODERATE_INPUT", true),
			ModerateOutput: getEnvAsBoolOrDefault("MODERATE_OUTPUT", true),
			Action:         ParseAction(getEnvOrDefault("MODERATION_ACTION", "block")),
			APIKey:         getEnvOrDefault("OPENAI_API_KEY", ""),
			BaseURL:        getEnvOrDefault("OPENAI_BASE_URL", ""),
		},
		RedisURL:            getEnvOrDefault("REDIS_URL", ""),
		FetchCacheTTL:       getEnvAsDurationOrDefault("FETCH_CACHE_TTL", 10*time.Minute),
		DatabaseURL:         getEnvOrDefault("DATABASE_URL", ""),
		ChatRateLimitPerMin: getEnvAsIntOrDefault("CHAT_RATE_LIMIT_PER_MINUTE", 20),
		CORSOrigins:         splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
	}

	return cfg
}

// ParseAction maps MODERATION_ACTION to an action. Anything other than block or
// warn only records the verdict.
func ParseAction(s string) ModerationAction {
	switch ModerationAction(strings.ToLower(strings.TrimSpace(s))) {
	case ActionBlock:
		return ActionBlock
	case ActionWarn:
		return ActionWarn
	default:
		return ActionLog
	}
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvAsBoolOrDefault treats only "true" (any case) as true, like the widget's
// deployment scripts expect.
func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return strings.ToLower(strings.TrimSpace(val)) == "true"
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
