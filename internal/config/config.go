// Package config loads SecretKeeper settings from the environment, an
// optional .env file, and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvGeminiKey         = "GEMINI_API_KEY"
	EnvGeminiModel       = "GEMINI_MODEL"
	EnvOpenAIKey         = "OPENAI_API_KEY"
	EnvGPTChatKey        = "GPT_CHAT_KEY"
	EnvGPTChatEndpoint   = "GPT_CHAT_ENDPOINT"
	EnvOpenAIModel       = "OPENAI_MODEL"
	EnvPort              = "PORT"
	EnvAllowedOrigins    = "ALLOWED_ORIGINS"
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
	EnvServerURL         = "SECRETKEEPER_URL"
	EnvDebug             = "DEBUG"
)

// Defaults.
const (
	DefaultPort      = 3000
	DefaultServerURL = "http://localhost:3000"
)

// Config holds the settings shared by the server and the terminal client.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr           string
	AllowedOrigins []string
	Debug          bool

	GeminiKey   string
	GeminiModel string

	// OpenAI-compatible fallback, used when no Gemini key is set.
	OpenAIKey      string
	OpenAIEndpoint string
	OpenAIModel    string

	AzureSpeechKey    string
	AzureSpeechRegion string

	// ServerURL is the chat endpoint base the terminal client talks to.
	ServerURL string
}

// Overrides optionally overrides values from environment variables.
//
// A nil pointer means "use the environment/default value".
type Overrides struct {
	Addr        *string
	ServerURL   *string
	GeminiModel *string
	Debug       *bool
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding ones already set. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables and applies any
// explicit overrides.
func Load(overrides Overrides) (*Config, error) {
	port := DefaultPort
	if portStr := os.Getenv(EnvPort); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("config: invalid %s %q", EnvPort, portStr)
		}
		port = p
	}

	addr := fmt.Sprintf(":%d", port)
	if overrides.Addr != nil {
		addr = *overrides.Addr
	}

	openAIKey := os.Getenv(EnvOpenAIKey)
	if openAIKey == "" {
		openAIKey = os.Getenv(EnvGPTChatKey)
	}

	geminiModel := os.Getenv(EnvGeminiModel)
	if overrides.GeminiModel != nil {
		geminiModel = *overrides.GeminiModel
	}

	serverURL := os.Getenv(EnvServerURL)
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	if overrides.ServerURL != nil {
		serverURL = *overrides.ServerURL
	}

	debug := false
	if debugStr := os.Getenv(EnvDebug); debugStr == "true" || debugStr == "1" {
		debug = true
	}
	if overrides.Debug != nil {
		debug = *overrides.Debug
	}

	origins := splitList(os.Getenv(EnvAllowedOrigins))
	for _, o := range origins {
		if !ValidOrigin(o) {
			return nil, fmt.Errorf("config: invalid %s entry %q: want * or an http:// or https:// origin", EnvAllowedOrigins, o)
		}
	}

	return &Config{
		Addr:              addr,
		AllowedOrigins:    origins,
		Debug:             debug,
		GeminiKey:         strings.TrimSpace(os.Getenv(EnvGeminiKey)),
		GeminiModel:       geminiModel,
		OpenAIKey:         openAIKey,
		OpenAIEndpoint:    os.Getenv(EnvGPTChatEndpoint),
		OpenAIModel:       os.Getenv(EnvOpenAIModel),
		AzureSpeechKey:    os.Getenv(EnvAzureSpeechKey),
		AzureSpeechRegion: os.Getenv(EnvAzureSpeechRegion),
		ServerURL:         strings.TrimRight(serverURL, "/"),
	}, nil
}

// SpeechSynthesisConfigured reports whether Azure credentials are present.
func (c *Config) SpeechSynthesisConfigured() bool {
	return c.AzureSpeechKey != "" && c.AzureSpeechRegion != ""
}

// OpenAIConfigured reports whether the OpenAI-compatible fallback is set.
func (c *Config) OpenAIConfigured() bool {
	return c.OpenAIKey != "" && c.OpenAIEndpoint != ""
}

// ValidOrigin reports whether o is "*" or an origin with an http or https
// scheme.
func ValidOrigin(o string) bool {
	return o == "*" || strings.HasPrefix(o, "http://") || strings.HasPrefix(o, "https://")
}

// splitList parses a comma separated list. Empty input yields ["*"].
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
