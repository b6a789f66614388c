package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	MigrateOnBoot bool

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// LLM providers. Provider selects which client backs the pipeline
	// stages: "bedrock" (default) or "gemini".
	LLMProvider     string
	BedrockModelID  string
	IntentModelID   string
	SafetyModelID   string
	ResponseModelID string
	GeminiAPIKey    string
	GeminiModel     string

	// Security posture
	EscalationWindow    time.Duration
	EscalationThreshold int
	EscalationCooldown  time.Duration
	StrictKeywords      []string

	// Incident and evidence storage
	IncidentTable  string
	EvidenceBucket string

	// Outcome fan-out
	OutcomeQueueURL string

	// Operator alerting
	AlertProvider     string
	OperatorEmail     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string

	// Admin console
	AdminJWTSecret string

	// Rate limiting
	RedisAddr       string
	RedisPassword   string
	RateLimitPerMin int

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MigrateOnBoot: getEnvAsBool("MIGRATE_ON_BOOT", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		LLMProvider:     strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "bedrock"))),
		BedrockModelID:  getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-5-haiku-20241022-v1:0"),
		IntentModelID:   getEnv("INTENT_MODEL_ID", ""),
		SafetyModelID:   getEnv("SAFETY_MODEL_ID", ""),
		ResponseModelID: getEnv("RESPONSE_MODEL_ID", ""),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		EscalationWindow:    getEnvAsDuration("ESCALATION_WINDOW", 60*time.Second),
		EscalationThreshold: getEnvAsInt("ESCALATION_THRESHOLD", 3),
		EscalationCooldown:  getEnvAsDuration("ESCALATION_COOLDOWN", 600*time.Second),
		StrictKeywords:      getEnvAsList("STRICT_KEYWORDS", nil),

		IncidentTable:  getEnv("INCIDENT_TABLE", "security_incidents"),
		EvidenceBucket: getEnv("EVIDENCE_BUCKET", ""),

		OutcomeQueueURL: getEnv("OUTCOME_QUEUE_URL", ""),

		AlertProvider:     strings.ToLower(strings.TrimSpace(getEnv("ALERT_PROVIDER", "sendgrid"))),
		OperatorEmail:     getEnv("OPERATOR_EMAIL", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "AegisGraph Security"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RateLimitPerMin: getEnvAsInt("RATE_LIMIT_PER_MIN", 60),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
	}
}

// ModelID resolves a per-stage model override, falling back to the shared
// Bedrock model.
func (c *Config) ModelID(stage string) string {
	switch stage {
	case "intent":
		if c.IntentModelID != "" {
			return c.IntentModelID
		}
	case "safety":
		if c.SafetyModelID != "" {
			return c.SafetyModelID
		}
	case "response":
		if c.ResponseModelID != "" {
			return c.ResponseModelID
		}
	}
	return c.BedrockModelID
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

// getEnvAsList splits a comma-separated environment variable, dropping empty
// entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
