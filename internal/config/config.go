// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/support-router/internal/policy"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	AllowedOrigins     []string

	// Storage. An empty DatabaseURL keeps conversations in memory.
	DatabaseURL string
	DBMaxConns  int
	DBMinConns  int

	// NATS settings
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// Classifier settings
	ClassifierBackend string
	ClassifierURL     string
	ClassifierTimeout time.Duration

	// LLM settings, used when ClassifierBackend is openai or anthropic
	AnthropicAPIKey string
	OpenAIAPIKey    string
	LLMModel        string

	// Channels
	FacebookPageToken   string
	FacebookVerifyToken string
	FacebookGraphURL    string
	TelegramBotToken    string
	DeliveryTimeout     time.Duration

	// Routing rules
	RulesFile string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Classifier backends.
const (
	BackendHTTP      = "http"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "3001"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		AllowedOrigins:     getListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		// Storage
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  getIntEnv("DB_MAX_CONNS", 10),
		DBMinConns:  getIntEnv("DB_MIN_CONNS", 1),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Classifier
		ClassifierBackend: getEnv("CLASSIFIER_BACKEND", BackendHTTP),
		ClassifierURL:     getEnv("CLASSIFIER_URL", "http://localhost:8000/chat"),
		ClassifierTimeout: getDurationEnv("CLASSIFIER_TIMEOUT", 10*time.Second),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		LLMModel:        getEnv("LLM_MODEL", ""),

		// Channels
		FacebookPageToken:   getEnv("FACEBOOK_PAGE_ACCESS_TOKEN", ""),
		FacebookVerifyToken: getEnv("FACEBOOK_VERIFY_TOKEN", ""),
		FacebookGraphURL:    getEnv("FACEBOOK_GRAPH_URL", ""),
		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		DeliveryTimeout:     getDurationEnv("DELIVERY_TIMEOUT", 10*time.Second),

		RulesFile: getEnv("ROUTING_RULES_FILE", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", 15*time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.ClassifierBackend {
	case BackendHTTP:
		if c.ClassifierURL == "" {
			return fmt.Errorf("config: CLASSIFIER_URL is required for the http backend")
		}
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("config: OPENAI_API_KEY is required for the openai backend")
		}
	case BackendAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("config: ANTHROPIC_API_KEY is required for the anthropic backend")
		}
	default:
		return fmt.Errorf("config: unknown CLASSIFIER_BACKEND %q", c.ClassifierBackend)
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_REQUESTS must be positive")
	}
	return nil
}

// Rules returns the routing rules, overlaying RulesFile onto the defaults when set.
func (c *Config) Rules() (policy.Rules, error) {
	if c.RulesFile == "" {
		return policy.DefaultRules(), nil
	}
	return LoadRules(c.RulesFile)
}

// LoadRules reads a YAML rules file. Fields missing from the file keep their defaults.
func LoadRules(path string) (policy.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Rules{}, fmt.Errorf("config: read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rules over policy.DefaultRules.
func ParseRules(data []byte) (policy.Rules, error) {
	rules := policy.DefaultRules()
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return policy.Rules{}, fmt.Errorf("config: parse rules: %w", err)
	}
	if rules.LowConfidenceThreshold < 0 || rules.LowConfidenceThreshold > 1 {
		return policy.Rules{}, fmt.Errorf("config: low_confidence_threshold must be within [0,1]")
	}
	if rules.ReviewThreshold < 0 || rules.ReviewThreshold > 1 {
		return policy.Rules{}, fmt.Errorf("config: review_threshold must be within [0,1]")
	}
	return rules.WithDefaults(), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
