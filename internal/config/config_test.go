package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-router/internal/policy"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CLASSIFIER_URL", "")
	t.Setenv("DATABASE_URL", "")

	cfg := Load()
	require.Equal(t, "3001", cfg.ServerPort)
	require.Equal(t, "http://localhost:8000/chat", cfg.ClassifierURL)
	require.Equal(t, BackendHTTP, cfg.ClassifierBackend)
	require.Equal(t, 10*time.Second, cfg.DeliveryTimeout)
	require.Empty(t, cfg.DatabaseURL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CLASSIFIER_TIMEOUT", "3s")
	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("DB_MAX_CONNS", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()
	require.Equal(t, "9000", cfg.ServerPort)
	require.Equal(t, 3*time.Second, cfg.ClassifierTimeout)
	require.True(t, cfg.NATSEnabled)
	require.Equal(t, 10, cfg.DBMaxConns)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	cfg := Load()

	cfg.ClassifierBackend = BackendOpenAI
	cfg.OpenAIAPIKey = ""
	require.ErrorContains(t, cfg.Validate(), "OPENAI_API_KEY")

	cfg.ClassifierBackend = BackendAnthropic
	cfg.AnthropicAPIKey = "sk-ant"
	require.NoError(t, cfg.Validate())

	cfg.ClassifierBackend = "rasa"
	require.ErrorContains(t, cfg.Validate(), "unknown")
}

func TestParseRules_OverlaysDefaults(t *testing.T) {
	rules, err := ParseRules([]byte(`
low_confidence_threshold: 0.4
escalation_keywords:
  - "refund"
`))
	require.NoError(t, err)

	def := policy.DefaultRules()
	require.Equal(t, 0.4, rules.LowConfidenceThreshold)
	require.Equal(t, def.ReviewThreshold, rules.ReviewThreshold)
	require.Equal(t, []string{"refund"}, rules.EscalationKeywords)
	require.Equal(t, def.UrgentKeywords, rules.UrgentKeywords)
	require.Equal(t, def.HandoffNotice, rules.HandoffNotice)
}

func TestParseRules_Invalid(t *testing.T) {
	_, err := ParseRules([]byte("review_threshold: 1.5"))
	require.Error(t, err)

	_, err = ParseRules([]byte("escalation_keywords: {"))
	require.Error(t, err)
}

func TestRules_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("handoff_notice: \"A human will reply shortly.\"\n"), 0o600))

	cfg := &Config{RulesFile: path}
	rules, err := cfg.Rules()
	require.NoError(t, err)
	require.Equal(t, "A human will reply shortly.", rules.HandoffNotice)

	cfg.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = cfg.Rules()
	require.Error(t, err)

	cfg.RulesFile = ""
	rules, err = cfg.Rules()
	require.NoError(t, err)
	require.Equal(t, policy.DefaultRules(), rules)
}
