package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Backend directory (membership, doctors, neighborhoods, visits)
	BackendURL             string
	DirectoryTimeout       time.Duration
	DirectoryCreateTimeout time.Duration

	// Sessions
	SessionStore         string
	SessionTTL           time.Duration
	HistoryLimit         int
	AddressAcceptAnyText bool
	RedisAddr            string
	RedisPassword        string
	RedisTLS             bool

	// HTTP surface
	CORSAllowedOrigins []string
	AdminJWTSecret     string
	ChatRateLimit      float64
	ChatRateBurst      int

	// Audit trail
	DatabaseURL string

	// Language model providers
	LLMProvider            string
	LLMFallbackProvider    string
	LLMTimeout             time.Duration
	OpenAIAPIKey           string
	OpenAIModel            string
	GeminiAPIKey           string
	GeminiModel            string
	BedrockModelID         string
	InstitutionContextFile string

	// AWS (Bedrock, SES)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Visit notifications
	EmailProvider  string
	NotifyEmailTo  string
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BackendURL:             strings.TrimRight(getEnv("BACKEND_URL", "https://previmedbackend-q73n.onrender.com"), "/"),
		DirectoryTimeout:       getEnvAsDuration("DIRECTORY_TIMEOUT", 15*time.Second),
		DirectoryCreateTimeout: getEnvAsDuration("DIRECTORY_CREATE_TIMEOUT", 40*time.Second),

		SessionStore:         strings.ToLower(strings.TrimSpace(getEnv("SESSION_STORE", "memory"))),
		SessionTTL:           getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		HistoryLimit:         getEnvAsInt("HISTORY_LIMIT", 10),
		AddressAcceptAnyText: getEnvAsBool("ADDRESS_ACCEPT_ANY_TEXT", false),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisTLS:             getEnvAsBool("REDIS_TLS", false),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		ChatRateLimit:      getEnvAsFloat("CHAT_RATE_LIMIT", 2),
		ChatRateBurst:      getEnvAsInt("CHAT_RATE_BURST", 10),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		LLMProvider:            strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "none"))),
		LLMFallbackProvider:    strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		LLMTimeout:             getEnvAsDuration("LLM_TIMEOUT", 20*time.Second),
		OpenAIAPIKey:           getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:            getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
		GeminiAPIKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID:         getEnv("BEDROCK_MODEL_ID", ""),
		InstitutionContextFile: getEnv("INSTITUTION_CONTEXT_FILE", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "none"))),
		NotifyEmailTo:  getEnv("NOTIFY_EMAIL_TO", ""),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Previmed"),
	}
}

// UsesRedisSessions reports whether sessions should be persisted in Redis.
func (c *Config) UsesRedisSessions() bool {
	return c.SessionStore == "redis"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
