package config

import (
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// QdrantURL, when set, overrides host/port/TLS (https scheme enables TLS)
	QdrantURL    string `envconfig:"QDRANT_URL"`
	QdrantHost   string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort   int    `envconfig:"QDRANT_PORT" default:"6334"`
	QdrantAPIKey string `envconfig:"QDRANT_API_KEY"`
	QdrantUseTLS bool   `envconfig:"QDRANT_USE_TLS" default:"false"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"forge-cdn"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	// Bootstrap: create initial user and API key on startup
	InitUserName string `envconfig:"INIT_USER_NAME"`
	InitAPIKey   string `envconfig:"INIT_API_KEY"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("FORGE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.applyQdrantURL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyQdrantURL derives QdrantHost, QdrantPort and QdrantUseTLS from
// QdrantURL. A missing scheme is treated as plain gRPC; a missing port keeps
// the 6334 gRPC default.
func (c *Config) applyQdrantURL() error {
	if c.QdrantURL == "" {
		return nil
	}

	raw := c.QdrantURL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("invalid QDRANT_URL %q", c.QdrantURL)
	}

	c.QdrantHost = u.Hostname()
	c.QdrantUseTLS = u.Scheme == "https"
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid QDRANT_URL port %q", p)
		}
		c.QdrantPort = port
	} else {
		c.QdrantPort = 6334
	}

	return nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}
