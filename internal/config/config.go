// internal/config/config.go
//
// Runtime configuration loaded from the environment (and an optional .env
// file in development). Every field has a working default except the
// provider API keys; without keys the server runs with offline scenes and the
// toolkit reports its providers as unavailable.

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all server settings.
type Config struct {
	Port      string `env:"PORT" envDefault:"5175"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // "json" | "console"
	NodeEnv   string `env:"NODE_ENV" envDefault:"development"`

	DatabasePath   string        `env:"DATABASE_PATH" envDefault:"./data/escaperoom.db"`
	RedisURL       string        `env:"REDIS_URL"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"120s"`

	ClientOrigin   string `env:"CLIENT_ORIGIN" envDefault:"http://localhost:5173"`
	JWTSecret      string `env:"JWT_SECRET" envDefault:"dev_secret_change_me"`
	JWTExpiresDays int    `env:"JWT_EXPIRES_DAYS" envDefault:"14"`
	CookieName     string `env:"COOKIE_NAME" envDefault:"escaperoom_token"`
	AnonCookieName string `env:"ANON_COOKIE_NAME" envDefault:"escaperoom_anon"`

	DailySalt  string `env:"DAILY_SALT" envDefault:"local_dev_salt"`
	ThemesFile string `env:"THEMES_FILE"`

	OpenAIKey        string   `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string   `env:"OPENAI_BASE_URL"`
	OpenAITextModels []string `env:"OPENAI_TEXT_MODELS" envSeparator:"," envDefault:"gpt-4o-mini"`
	OpenAIImageModel string   `env:"OPENAI_IMAGE_MODEL" envDefault:"dall-e-3"`

	GeminiKey        string   `env:"GEMINI_API_KEY"`
	GeminiPassword   string   `env:"GEMINI_PASSWORD"`
	GeminiBaseURL    string   `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiTextModels []string `env:"GEMINI_TEXT_MODELS" envSeparator:"," envDefault:"gemini-2.0-flash,gemini-2.0-flash-exp,gemini-1.5-flash,gemini-1.5-pro"`
	ImagenModels     []string `env:"IMAGEN_MODELS" envSeparator:"," envDefault:"imagen-4.0-generate-001,imagen-3.0-generate-001,imagen-4.0-fast-generate-001"`

	// SceneProvider picks which provider renders escape room scenes: "openai", "google" or "none".
	SceneProvider     string        `env:"SCENE_PROVIDER" envDefault:"openai"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"90s"`
	ToolkitLanguage   string        `env:"TOOLKIT_LANGUAGE" envDefault:"Korean"`
}

// Production reports whether cookies should be Secure/SameSite=None.
func (c Config) Production() bool { return c.NodeEnv == "production" }

// Load reads an optional .env file and parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse fills target from environment variables.
func Parse(target *Config) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if target.JWTExpiresDays <= 0 {
		return fmt.Errorf("parse env: JWT_EXPIRES_DAYS must be positive, got %d", target.JWTExpiresDays)
	}
	return nil
}
