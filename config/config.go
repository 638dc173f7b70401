package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	DatabaseDriver     string        `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL        string        `env:"DATABASE_URL"`
	Port               string        `env:"PORT" envDefault:"8080"`
	GoEnv              string        `env:"GO_ENV" envDefault:"development"`
	JWTSecret          string        `env:"JWT_SECRET"`
	JWTIssuer          string        `env:"JWT_ISSUER" envDefault:"tuinawx-user"`
	JWTAudience        string        `env:"JWT_AUDIENCE" envDefault:"tuinawx-miniprogram"`
	AWSRegion          string        `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSS3Bucket        string        `env:"AWS_S3_BUCKET"`
	AWSAccessKeyID     string        `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string        `env:"AWS_SECRET_ACCESS_KEY"`
	StripeAPIKey       string        `env:"STRIPE_API_KEY"`
	StripeCurrency     string        `env:"STRIPE_CURRENCY" envDefault:"cny"`
	PubSubProjectID    string        `env:"PUBSUB_PROJECT_ID"`
	PubSubTopic        string        `env:"PUBSUB_TOPIC" envDefault:"order-notifications"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	BookingBuffer      time.Duration `env:"BOOKING_BUFFER" envDefault:"1h"`
	DistanceFreeKm     float64       `env:"DISTANCE_FREE_KM" envDefault:"5"`
	DistanceFeePerKm   int64         `env:"DISTANCE_FEE_PER_KM" envDefault:"0"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	// Determine which environment file to load
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Try to load environment-specific file first
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		// If environment-specific file doesn't exist, try .env
		if err := godotenv.Load(); err != nil {
			// In production variables are set directly on the container
			log.Printf("No .env file found, using system environment variables")
		}
	} else {
		log.Printf("Loaded configuration from %s", envFile)
	}

	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if c.BookingBuffer < 0 {
		return errors.New("BOOKING_BUFFER must not be negative")
	}
	if c.DistanceFeePerKm < 0 {
		return errors.New("DISTANCE_FEE_PER_KM must not be negative")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// S3Enabled reports whether photo storage is configured
func (c *Config) S3Enabled() bool {
	return c.AWSS3Bucket != ""
}

// PubSubEnabled reports whether notifications are also published to Pub/Sub
func (c *Config) PubSubEnabled() bool {
	return c.PubSubProjectID != "" && c.PubSubTopic != ""
}
