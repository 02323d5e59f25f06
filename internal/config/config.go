// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	LogLevel    string
	LogPretty   bool // text handler instead of JSON, for local runs

	// Transcription (Deepgram streaming).
	DeepgramAPIKey     string
	DeepgramModel      string
	SampleRate         int
	TranscriberRetries int // reconnect attempts before degrading to buffered audio

	// Question generation and vision (Groq, OpenAI-compatible API).
	GroqAPIKey  string
	GroqBaseURL string
	LLMModel    string
	VisionModel string

	// Speech synthesis.
	TTSProvider      string // "openai" or "elevenlabs"
	OpenAIAPIKey     string
	TTSVoice         string
	ElevenLabsAPIKey string
	ElevenLabsVoice  string

	// Session orchestration tunables.
	VisionChangeThreshold float64       // normalized 0-1, change above this triggers analysis
	VisionMinInterval     time.Duration // minimum gap between triggered analyses
	ScreenShareGrace      time.Duration // reconnection window after screen share loss
	KeepaliveInterval     time.Duration
	MaxDuration           time.Duration // advertised to clients, not enforced server-side
	ClientFrameInterval   time.Duration // advertised frame capture cadence

	// History retention. Zero keeps interviews forever.
	RetentionDays int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/interviews.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvBool("LOG_PRETTY", false),

		DeepgramAPIKey:     getEnv("DEEPGRAM_API_KEY", ""),
		DeepgramModel:      getEnv("DEEPGRAM_MODEL", "nova-2"),
		SampleRate:         getEnvInt("SAMPLE_RATE", 16000),
		TranscriberRetries: getEnvInt("TRANSCRIBER_RETRIES", 3),

		GroqAPIKey:  getEnv("GROQ_API_KEY", ""),
		GroqBaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		LLMModel:    getEnv("LLM_MODEL", "llama-3.3-70b-versatile"),
		VisionModel: getEnv("VISION_MODEL", "meta-llama/llama-4-scout-17b-16e-instruct"),

		TTSProvider:      getEnv("TTS_PROVIDER", "openai"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		TTSVoice:         getEnv("TTS_VOICE", "alloy"),
		ElevenLabsAPIKey: getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoice:  getEnv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),

		VisionChangeThreshold: getEnvFloat("VISION_CHANGE_THRESHOLD", 0.10),
		VisionMinInterval:     getEnvDuration("VISION_MIN_INTERVAL", 3*time.Second),
		ScreenShareGrace:      getEnvDuration("SCREEN_SHARE_GRACE", 30*time.Second),
		KeepaliveInterval:     getEnvDuration("KEEPALIVE_INTERVAL", 30*time.Second),
		MaxDuration:           getEnvDuration("MAX_INTERVIEW_DURATION", 30*time.Minute),
		ClientFrameInterval:   getEnvDuration("CLIENT_FRAME_INTERVAL", 2*time.Second),

		RetentionDays: getEnvInt("RETENTION_DAYS", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be > 0")
	}
	if c.TranscriberRetries < 0 {
		return fmt.Errorf("TRANSCRIBER_RETRIES must be >= 0")
	}
	if c.VisionChangeThreshold <= 0 || c.VisionChangeThreshold > 1 {
		return fmt.Errorf("VISION_CHANGE_THRESHOLD must be in (0, 1]")
	}
	if c.VisionMinInterval <= 0 {
		return fmt.Errorf("VISION_MIN_INTERVAL must be > 0")
	}
	if c.ScreenShareGrace <= 0 {
		return fmt.Errorf("SCREEN_SHARE_GRACE must be > 0")
	}
	switch c.TTSProvider {
	case "openai", "elevenlabs":
	default:
		return fmt.Errorf("TTS_PROVIDER must be \"openai\" or \"elevenlabs\", got %q", c.TTSProvider)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("RETENTION_DAYS must be >= 0")
	}

	// API keys may be absent in development; fakes take over there.
	if !c.IsDevelopment() {
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required outside development")
		}
		if c.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY is required outside development")
		}
		if c.TTSProvider == "openai" && c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai TTS provider")
		}
		if c.TTSProvider == "elevenlabs" && c.ElevenLabsAPIKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY is required for the elevenlabs TTS provider")
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
