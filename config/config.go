package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	ServerPort string          `mapstructure:"SERVER_PORT"`
	GinMode    string          `mapstructure:"GIN_MODE"`
	DB         DBConfig        `mapstructure:"DB"`
	Gemini     GeminiConfig    `mapstructure:"GEMINI"`
	PDF        PDFConfig       `mapstructure:"PDF"`
	Session    SessionConfig   `mapstructure:"SESSION"`
	Ingestion  IngestionConfig `mapstructure:"INGESTION"`
	CORS       CORSConfig      `mapstructure:"CORS"`
	Templates  TemplatesConfig `mapstructure:"TEMPLATES"`
}

// DBConfig selects the persistence backend
type DBConfig struct {
	Driver string `mapstructure:"DRIVER"` // sqlite or postgres
	URL    string `mapstructure:"URL"`
}

// GeminiConfig holds the generation API settings
type GeminiConfig struct {
	APIKey   string        `mapstructure:"API_KEY"`
	Model    string        `mapstructure:"MODEL"`
	Endpoint string        `mapstructure:"ENDPOINT"`
	Timeout  time.Duration `mapstructure:"TIMEOUT"`
}

// PDFConfig holds the text extractor settings
type PDFConfig struct {
	ExtractorPath string        `mapstructure:"EXTRACTOR_PATH"`
	Timeout       time.Duration `mapstructure:"TIMEOUT"`
}

// SessionConfig tunes the taking and review screens
type SessionConfig struct {
	JumpDebounce time.Duration `mapstructure:"JUMP_DEBOUNCE"`
	Tick         time.Duration `mapstructure:"TICK"`
}

// IngestionConfig controls job housekeeping
type IngestionConfig struct {
	JobTTL        time.Duration `mapstructure:"JOB_TTL"`
	PruneInterval time.Duration `mapstructure:"PRUNE_INTERVAL"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"ALLOWED_ORIGINS"`
}

type TemplatesConfig struct {
	Dir string `mapstructure:"DIR"`
}

// LoadConfig loads configuration from .env, config.yaml and environment variables
func LoadConfig() (*Config, error) {
	// .env only seeds the environment; real variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	viper.SetConfigName("config") // config.yaml
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	// Set defaults
	viper.SetDefault("SERVER_PORT", ":8080")
	viper.SetDefault("GIN_MODE", "debug") // gin.DebugMode, gin.ReleaseMode, gin.TestMode
	viper.SetDefault("DB.DRIVER", "sqlite")
	viper.SetDefault("DB.URL", "file:quizzer.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)")
	viper.SetDefault("GEMINI.API_KEY", "")
	viper.SetDefault("GEMINI.MODEL", "gemini-1.5-flash")
	viper.SetDefault("GEMINI.ENDPOINT", "https://generativelanguage.googleapis.com")
	viper.SetDefault("GEMINI.TIMEOUT", "120s")
	viper.SetDefault("PDF.EXTRACTOR_PATH", "pdftotext")
	viper.SetDefault("PDF.TIMEOUT", "60s")
	viper.SetDefault("SESSION.JUMP_DEBOUNCE", "500ms")
	viper.SetDefault("SESSION.TICK", "1s")
	viper.SetDefault("INGESTION.JOB_TTL", "30m")
	viper.SetDefault("INGESTION.PRUNE_INTERVAL", "5m")
	viper.SetDefault("CORS.ALLOWED_ORIGINS", []string{"http://localhost:5173"})
	viper.SetDefault("TEMPLATES.DIR", "templates")

	// Read from config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("config.yaml not found, using environment variables and defaults")
		} else {
			return nil, fmt.Errorf("fatal error config file: %w", err)
		}
	}

	// Override with environment variables (e.g., QUIZZER_SERVER_PORT, QUIZZER_DB_DRIVER)
	viper.SetEnvPrefix("QUIZZER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown DB.DRIVER %q (want sqlite or postgres)", c.DB.Driver)
	}
	if c.Session.Tick <= 0 {
		return fmt.Errorf("SESSION.TICK must be positive, got %s", c.Session.Tick)
	}
	if c.Ingestion.PruneInterval <= 0 {
		return fmt.Errorf("INGESTION.PRUNE_INTERVAL must be positive, got %s", c.Ingestion.PruneInterval)
	}
	return nil
}
