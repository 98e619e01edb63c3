package provider

import (
	"os"
	"strconv"
	"time"

	ooption "github.com/openai/openai-go/option"
)

// Environment variables read at provider construction time. There is no
// on-disk configuration layer; the environment is the only config source the
// engine itself consumes.
const (
	EnvAPIKey    = "OPENAI_API_KEY"
	EnvBaseURL   = "OPENAI_BASE_URL"
	EnvTimeoutMS = "OPENAI_TIMEOUT_MS"
)

// NewOpenAIProviderFromEnv builds the default OpenAI-backed provider from the
// process environment: OPENAI_API_KEY, OPENAI_BASE_URL, and a per-request
// timeout from OPENAI_TIMEOUT_MS when set.
func NewOpenAIProviderFromEnv() *OpenAIProvider {
	var opts []ooption.RequestOption
	if d, ok := envTimeout(); ok {
		opts = append(opts, ooption.WithRequestTimeout(d))
	}
	return NewOpenAIProvider(os.Getenv(EnvAPIKey), os.Getenv(EnvBaseURL), opts...)
}

// envTimeout parses OPENAI_TIMEOUT_MS, ignoring unset, unparsable, or
// non-positive values.
func envTimeout() (time.Duration, bool) {
	raw := os.Getenv(EnvTimeoutMS)
	if raw == "" {
		return 0, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
