package config

import (
	"errors"
	"strings"

	"github.com/tendant/simple-repository/pkg/ingest"
)

// WithPort sets the listen port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the runtime environment name
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		c.Environment = env
		return nil
	}
}

// WithDatabase selects the coordinate index backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the Postgres search_path schema
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate creates the coordinates table on startup
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithFilesystemStorage stores uploads below dir
func WithFilesystemStorage(dir string) Option {
	return func(c *ServerConfig) error {
		if dir == "" {
			return errors.New("storage directory cannot be empty")
		}
		c.StorageType = "fs"
		c.StorageDir = dir
		return nil
	}
}

// WithMemoryStorage keeps uploads in memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageType = "memory"
		return nil
	}
}

// WithS3Storage stores uploads in an S3 bucket
func WithS3Storage(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		c.StorageType = "s3"
		if s3.Region == "" {
			s3.Region = c.S3.Region
		}
		c.S3 = s3
		return nil
	}
}

// WithJWTSecret enables bearer tokens signed with secret
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithBasicAuthUser adds a user with a bcrypt password hash
func WithBasicAuthUser(user, bcryptHash string) Option {
	return func(c *ServerConfig) error {
		if user == "" || !strings.HasPrefix(bcryptHash, "$2") {
			return errors.New("basic auth user needs a name and a bcrypt hash")
		}
		c.BasicAuthUsers[user] = bcryptHash
		return nil
	}
}

// WithGroupGrant lets who deploy under group and its subgroups
func WithGroupGrant(who ingest.Identity, group string) Option {
	return func(c *ServerConfig) error {
		c.GroupGrants[who] = append(c.GroupGrants[who], group)
		return nil
	}
}

// WithAllowAnyUser lets every authenticated identity deploy anywhere
func WithAllowAnyUser(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AllowAnyUser = enabled
		return nil
	}
}

// WithPromotionWebhook posts promotion tasks to url
func WithPromotionWebhook(url, token string) Option {
	return func(c *ServerConfig) error {
		c.PromotionWebhookURL = url
		c.PromotionWebhookToken = token
		return nil
	}
}

// WithLogging sets level (debug, info, warn, error) and format (text, json)
func WithLogging(level, format string) Option {
	return func(c *ServerConfig) error {
		c.LogLevel = level
		c.LogFormat = format
		return nil
	}
}

// WithMaxUploadSize caps request bodies; 0 disables the limit
func WithMaxUploadSize(n int64) Option {
	return func(c *ServerConfig) error {
		c.MaxUploadSize = n
		return nil
	}
}
