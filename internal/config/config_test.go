package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("ESCALATION_THRESHOLD", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.LLMProvider != "bedrock" {
		t.Fatalf("expected default provider bedrock, got %s", cfg.LLMProvider)
	}
	if cfg.EscalationWindow != 60*time.Second {
		t.Fatalf("expected default escalation window, got %s", cfg.EscalationWindow)
	}
	if cfg.EscalationThreshold != 3 {
		t.Fatalf("expected default escalation threshold, got %d", cfg.EscalationThreshold)
	}
	if cfg.EscalationCooldown != 600*time.Second {
		t.Fatalf("expected default escalation cooldown, got %s", cfg.EscalationCooldown)
	}
	if cfg.StrictKeywords != nil {
		t.Fatalf("expected no strict keyword override by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("ESCALATION_WINDOW", "2m")
	t.Setenv("ESCALATION_THRESHOLD", "5")
	t.Setenv("STRICT_KEYWORDS", "ssn, dob ,home address")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.LLMProvider != "gemini" {
		t.Fatalf("expected normalized provider, got %s", cfg.LLMProvider)
	}
	if cfg.EscalationWindow != 2*time.Minute {
		t.Fatalf("expected escalation window override, got %s", cfg.EscalationWindow)
	}
	if cfg.EscalationThreshold != 5 {
		t.Fatalf("expected escalation threshold override, got %d", cfg.EscalationThreshold)
	}
	if len(cfg.StrictKeywords) != 3 || cfg.StrictKeywords[1] != "dob" {
		t.Fatalf("expected trimmed keyword list, got %v", cfg.StrictKeywords)
	}
	if cfg.RateLimitPerMin != 30 {
		t.Fatalf("expected rate limit override, got %d", cfg.RateLimitPerMin)
	}
}

func TestModelIDFallback(t *testing.T) {
	cfg := &Config{BedrockModelID: "base-model", SafetyModelID: "safety-model"}
	if got := cfg.ModelID("safety"); got != "safety-model" {
		t.Fatalf("expected per-stage override, got %s", got)
	}
	if got := cfg.ModelID("intent"); got != "base-model" {
		t.Fatalf("expected fallback model, got %s", got)
	}
	if got := cfg.ModelID("response"); got != "base-model" {
		t.Fatalf("expected fallback model, got %s", got)
	}
}
