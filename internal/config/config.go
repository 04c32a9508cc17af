package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DataDir string `env:"DATA_DIR" envDefault:"./data"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"0"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken      string   `env:"AUTH_TOKEN"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS" envDefault:"0"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"30"`

	RendererURL       string        `env:"RENDERER_URL" envDefault:"http://localhost:8765"`
	RendererPageCount int           `env:"RENDERER_PAGE_COUNT" envDefault:"30"`
	RendererTimeout   time.Duration `env:"RENDERER_TIMEOUT" envDefault:"60s"`
	RendererTokenFile string        `env:"RENDERER_TOKEN_FILE" envDefault:"./data/renderer_token.json"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"1h"`

	ExtractCmd     string        `env:"EXTRACT_CMD" envDefault:"python3 -m glyph_extract"`
	ExtractTimeout time.Duration `env:"EXTRACT_TIMEOUT" envDefault:"120s"`

	OpenAIAPIKey   string        `env:"OPENAI_API_KEY"`
	RewriteModel   string        `env:"REWRITE_MODEL" envDefault:"gpt-4o-mini"`
	RewriteTimeout time.Duration `env:"REWRITE_TIMEOUT" envDefault:"120s"`

	ElevenLabsAPIKey string        `env:"ELEVENLABS_API_KEY"`
	ElevenLabsVoice  string        `env:"ELEVENLABS_VOICE" envDefault:"21m00Tcm4TlvDq8ikWAM"`
	ElevenLabsModel  string        `env:"ELEVENLABS_MODEL" envDefault:"eleven_multilingual_v2"`
	SynthesisTimeout time.Duration `env:"SYNTHESIS_TIMEOUT" envDefault:"120s"`

	PollyVoice   string `env:"POLLY_VOICE" envDefault:"Joanna"`
	AWSRegion    string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSAccessKey string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey string `env:"AWS_SECRET_ACCESS_KEY"`

	MinRemainingPositions    int     `env:"MIN_REMAINING_POSITIONS" envDefault:"3000"`
	BenchmarkIntervalSeconds float64 `env:"BENCHMARK_INTERVAL_SECONDS" envDefault:"5"`
	TargetDurationMinutes    int     `env:"TARGET_DURATION_MINUTES" envDefault:"10"`
	MaxSynthesisChars        int     `env:"MAX_SYNTHESIS_CHARS" envDefault:"20000"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
	DataDir  string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DataDir != "" {
		cfg.DataDir = overrides.DataDir
	}

	return cfg, nil
}
