package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	GinMode  string
	LogLevel string
	Env      string

	// Credential store
	CredentialsBackend  string // "file" or "redis"
	CredentialsFile     string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	RedisCredentialsKey string

	// Providers
	GroqBaseURL     string
	GeminiBaseURL   string
	XAIBaseURL      string
	ChatMaxTokens   int
	UpstreamTimeout time.Duration
	SystemPrompt    string

	// Client side
	APIURL        string
	SettingsDSN   string
	ClientTimeout time.Duration
	TTSBaseURL    string
	TTSAPIKey     string
	TTSModel      string
	TTSPlayer     string
	TTSOutputDir  string
}

// DefaultSystemPrompt is the conversation-partner instruction sent ahead of every request.
const DefaultSystemPrompt = "You are a friendly, patient English conversation partner helping someone practice their English. " +
	"Have natural, engaging conversations on any topic they choose. Speak fluently and naturally, like a native speaker would. " +
	"Keep your responses conversational (2-4 sentences typically) unless the topic requires more detail. " +
	"Occasionally ask follow-up questions to keep the conversation flowing. " +
	"Don't correct grammar unless it causes confusion - focus on natural conversation. Be encouraging and supportive."

// LoadFile merges variables from an env file into the process environment.
// A missing file is not an error; variables already set are left alone.
func LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func Load() Config {
	backend := strings.ToLower(getEnv("CREDENTIALS_BACKEND", "file"))
	if backend != "redis" {
		backend = "file"
	}

	maxTokens := getInt("CHAT_MAX_TOKENS", 1000)
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	return Config{
		Port:     getEnv("PORT", "3001"),
		GinMode:  getEnv("GIN_MODE", "release"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Env:      getEnv("GO_ENV", "development"),

		CredentialsBackend:  backend,
		CredentialsFile:     getEnv("CREDENTIALS_FILE", ".env"),
		RedisAddr:           getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getInt("REDIS_DB", 0),
		RedisCredentialsKey: getEnv("REDIS_CREDENTIALS_KEY", "speakup:credentials"),

		GroqBaseURL:     os.Getenv("GROQ_BASE_URL"),
		GeminiBaseURL:   os.Getenv("GEMINI_BASE_URL"),
		XAIBaseURL:      os.Getenv("XAI_BASE_URL"),
		ChatMaxTokens:   maxTokens,
		UpstreamTimeout: getDuration("UPSTREAM_TIMEOUT", 90*time.Second),
		SystemPrompt:    getEnv("SYSTEM_PROMPT", DefaultSystemPrompt),

		APIURL:        getEnv("SPEAKUP_API_URL", "http://localhost:3001"),
		SettingsDSN:   getEnv("SPEAKUP_SETTINGS_DSN", "speakup.db"),
		ClientTimeout: getDuration("CLIENT_TIMEOUT", 45*time.Second),
		TTSBaseURL:    os.Getenv("TTS_BASE_URL"),
		TTSAPIKey:     os.Getenv("TTS_API_KEY"),
		TTSModel:      getEnv("TTS_MODEL", "tts-1"),
		TTSPlayer:     os.Getenv("TTS_PLAYER"),
		TTSOutputDir:  getEnv("TTS_OUTPUT_DIR", "replies"),
	}
}
