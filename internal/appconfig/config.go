// Package appconfig loads the router's process-wide configuration from
// environment variables, following the fail-fast-on-missing-secret,
// default-everything-else pattern the rest of the ambient stack uses.
package appconfig

import (
	"os"
	"strconv"
	"time"

	"github.com/lattice-run/promptrouter/internal/routererr"
)

// Config is the router's complete runtime configuration, loaded once at
// startup and replaced by app.Server.Reload on SIGHUP.
type Config struct {
	ListenAddr string
	LogLevel   string

	// AuxLLMBaseURL is the OpenAI-compatible endpoint used for the
	// classifier, selector, and enhancer calls (never for backend dispatch).
	AuxLLMBaseURL string
	AuxLLMAPIKey  string

	ClassifierModelID string
	SelectorModelID   string
	EnhancerModelID   string
	ConfidentialModelID string

	ClassifierTimeout time.Duration
	SelectorTimeout   time.Duration
	EnhancerTimeout   time.Duration
	RegistryTimeout   time.Duration
	DispatchTimeout   time.Duration

	RegistryBaseURL string
	DispatchBaseURL string

	RateLimitRPS   int
	RateLimitBurst int

	TemporalEnabled bool
	TemporalHostPort string

	OTelEnabled  bool
	OTelEndpoint string
}

const (
	envListenAddr          = "PROMPTROUTER_LISTEN_ADDR"
	envLogLevel            = "PROMPTROUTER_LOG_LEVEL"
	envAuxLLMBaseURL       = "PROMPTROUTER_AUX_LLM_BASE_URL"
	envAuxLLMAPIKey        = "API_KEY_FOR_CLASSIFIER_LLM"
	envClassifierModelID   = "PROMPTROUTER_CLASSIFIER_MODEL_ID"
	envSelectorModelID     = "PROMPTROUTER_SELECTOR_MODEL_ID"
	envEnhancerModelID     = "PROMPTROUTER_ENHANCER_MODEL_ID"
	envConfidentialModelID = "CONFIDENTIAL_MODEL_ID"
	envRegistryBaseURL     = "PROMPTROUTER_REGISTRY_BASE_URL"
	envDispatchBaseURL     = "PROMPTROUTER_DISPATCH_BASE_URL"
	envRateLimitRPS        = "PROMPTROUTER_RATE_LIMIT_RPS"
	envRateLimitBurst      = "PROMPTROUTER_RATE_LIMIT_BURST"
	envTemporalEnabled     = "PROMPTROUTER_TEMPORAL_ENABLED"
	envTemporalHostPort    = "PROMPTROUTER_TEMPORAL_HOST_PORT"
	envOTelEnabled         = "ROUTER_OTEL_ENABLED"
	envOTelEndpoint        = "ROUTER_OTEL_ENDPOINT"
)

// LoadConfig reads Config from the environment, applying defaults for every
// value except the two secrets the router cannot safely default: the
// auxiliary LLM API key and the confidential-override model id. Missing
// either fails the process at startup rather than degrading silently.
func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr:          getEnv(envListenAddr, ":8080"),
		LogLevel:            getEnv(envLogLevel, "info"),
		AuxLLMBaseURL:       getEnv(envAuxLLMBaseURL, "https://api.groq.com/openai/v1"),
		AuxLLMAPIKey:        os.Getenv(envAuxLLMAPIKey),
		ClassifierModelID:   getEnv(envClassifierModelID, "llama-3.1-8b-instant"),
		SelectorModelID:     getEnv(envSelectorModelID, "llama-3.1-8b-instant"),
		EnhancerModelID:     getEnv(envEnhancerModelID, "llama-3.1-8b-instant"),
		ConfidentialModelID: os.Getenv(envConfidentialModelID),
		ClassifierTimeout:   10 * time.Second,
		SelectorTimeout:     15 * time.Second,
		EnhancerTimeout:     15 * time.Second,
		RegistryTimeout:     5 * time.Second,
		DispatchTimeout:     600 * time.Second,
		RegistryBaseURL:     getEnv(envRegistryBaseURL, "http://localhost:8080"),
		DispatchBaseURL:     getEnv(envDispatchBaseURL, "https://api.groq.com/openai/v1"),
		RateLimitRPS:        getEnvInt(envRateLimitRPS, 60),
		RateLimitBurst:      getEnvInt(envRateLimitBurst, 120),
		TemporalEnabled:     getEnvBool(envTemporalEnabled, false),
		TemporalHostPort:    getEnv(envTemporalHostPort, "localhost:7233"),
		OTelEnabled:         getEnvBool(envOTelEnabled, false),
		OTelEndpoint:        getEnv(envOTelEndpoint, "localhost:4318"),
	}

	if cfg.AuxLLMAPIKey == "" {
		return Config{}, &routererr.ConfigError{Field: envAuxLLMAPIKey, Msg: "required, no default — the router cannot make classifier/selector/enhancer calls without it"}
	}
	if cfg.ConfidentialModelID == "" {
		return Config{}, &routererr.ConfigError{Field: envConfidentialModelID, Msg: "required, no default — confidential override has no safe fallback destination"}
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
