package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration parameters read from environment variables.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Object store holding the uploaded source documents.
	DocsS3Key    string `envconfig:"DOCS_S3_KEY" required:"true"`
	DocsS3Secret string `envconfig:"DOCS_S3_SECRET" required:"true"`
	DocsS3URL    string `envconfig:"DOCS_S3_URL" required:"true"`
	DocsS3Region string `envconfig:"DOCS_S3_REGION" required:"true"`
	DocsS3Bucket string `envconfig:"DOCS_S3_BUCKET" required:"true"`

	// AI metadata extraction. The API key is deliberately optional: without it
	// the pipeline still runs and extraction degrades to empty results.
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`

	// Sweep for documents stuck in "processing".
	CronSchedule      string `envconfig:"CRON_SCHEDULE" default:"*/15 * * * *"`
	StuckAfterMinutes int    `envconfig:"STUCK_AFTER_MINUTES" default:"30"`
}

// DSN returns the data source name for the PostgreSQL connection.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
