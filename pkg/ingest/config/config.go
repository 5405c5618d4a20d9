package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tendant/simple-repository/pkg/ingest"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:              "8080",
		Environment:       "development",
		DatabaseType:      "memory",
		StorageType:       "fs",
		StorageDir:        "./data/repo",
		S3:                S3Config{Region: "us-east-1"},
		BasicAuthUsers:    map[string]string{},
		GroupGrants:       map[ingest.Identity][]string{},
		LogLevel:          "info",
		LogFormat:         "text",
		MaxDescriptorSize: ingest.DefaultMaxDescriptorSize,
		PromotionRetries:  5,
		ShutdownTimeout:   30 * time.Second,
	}
}

// ServerConfig represents server configuration for the repository
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Coordinate index
	DatabaseType string // "memory", "postgres"
	DatabaseURL  string
	DBSchema     string // search_path; empty keeps the server default
	AutoMigrate  bool

	// Content store
	StorageType string // "memory", "fs", "s3"
	StorageDir  string
	S3          S3Config

	// Identity and authorization
	JWTSecret      string
	BasicAuthUsers map[string]string // user -> bcrypt hash
	GroupGrants    map[ingest.Identity][]string
	AllowAnyUser   bool // any authenticated identity may deploy anywhere

	// Promotion
	PromotionWebhookURL   string
	PromotionWebhookToken string
	PromotionRetries      uint64

	LogLevel          string
	LogFormat         string // text, json
	MaxDescriptorSize int64
	MaxUploadSize     int64 // 0 means unlimited
	ShutdownTimeout   time.Duration
}

// S3Config holds settings for the s3 content store
type S3Config struct {
	Bucket                 string
	Prefix                 string
	Region                 string
	AccessKeyID            string
	SecretAccessKey        string
	Endpoint               string
	UsePathStyle           bool
	EnableSSE              bool
	SSEAlgorithm           string
	SSEKMSKeyID            string
	CreateBucketIfNotExist bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	default:
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	switch c.StorageType {
	case "memory":
	case "fs":
		if c.StorageDir == "" {
			return errors.New("storage directory is required for fs storage")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be 'text' or 'json', got %q", c.LogFormat)
	}
	if c.MaxDescriptorSize <= 0 {
		return errors.New("max descriptor size must be positive")
	}
	if c.MaxUploadSize < 0 {
		return errors.New("max upload size cannot be negative")
	}

	if c.Environment == "production" {
		if c.StorageType == "memory" || c.DatabaseType == "memory" {
			return errors.New("memory storage and index are not allowed in production")
		}
		if c.JWTSecret == "" && len(c.BasicAuthUsers) == 0 {
			return errors.New("production requires JWT_SECRET or BASIC_AUTH_USERS")
		}
	}

	return nil
}
