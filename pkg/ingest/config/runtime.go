package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-repository/pkg/ingest"
	"github.com/tendant/simple-repository/pkg/ingest/api"
	"github.com/tendant/simple-repository/pkg/ingest/descriptor/pom"
	"github.com/tendant/simple-repository/pkg/ingest/promote"
	repomemory "github.com/tendant/simple-repository/pkg/ingest/repo/memory"
	repopg "github.com/tendant/simple-repository/pkg/ingest/repo/postgres"
	fsstorage "github.com/tendant/simple-repository/pkg/ingest/storage/fs"
	memorystorage "github.com/tendant/simple-repository/pkg/ingest/storage/memory"
	s3storage "github.com/tendant/simple-repository/pkg/ingest/storage/s3"
)

// Runtime is everything the server needs, built from a ServerConfig
type Runtime struct {
	Service       ingest.Service
	Queue         *ingest.Queue
	Authenticator *api.Authenticator
	Promoter      promote.Promoter
	Webhook       *promote.WebhookPromoter // nil without PROMOTION_WEBHOOK_URL
	StaticRoot    string                   // set for fs storage only

	closers []func()
}

// Close releases database pools and other resources
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// BuildService wires storage, index, authorization and promotion from the configuration
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{}

	index, err := c.buildIndex(ctx, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}

	store, err := c.buildStore(ctx, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Queue = ingest.NewQueue()
	svc, err := ingest.New(
		ingest.WithContentStore(store),
		ingest.WithIndex(index),
		ingest.WithAuthorizer(c.buildAuthorizer()),
		ingest.WithDescriptorParser(pom.NewParser()),
		ingest.WithQueue(rt.Queue),
		ingest.WithNotifier(ingest.NewLoggingNotifier(logger)),
		ingest.WithLogger(logger),
		ingest.WithMaxDescriptorSize(c.MaxDescriptorSize),
	)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	rt.Service = svc

	rt.Authenticator = api.NewAuthenticator(c.JWTSecret, c.BasicAuthUsers, logger)

	if c.PromotionWebhookURL != "" {
		var opts []promote.WebhookOption
		if c.PromotionWebhookToken != "" {
			opts = append(opts, promote.WithBearerToken(c.PromotionWebhookToken))
		}
		rt.Webhook = promote.NewWebhookPromoter(c.PromotionWebhookURL, opts...)
		rt.Promoter = rt.Webhook
	} else {
		rt.Promoter = promote.NewLogPromoter(logger)
	}

	return rt, nil
}

// NewWorker creates the promotion consumer for rt
func (c *ServerConfig) NewWorker(rt *Runtime, logger *slog.Logger) *promote.Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return promote.NewWorker(rt.Queue.Receive(), rt.Promoter,
		promote.WithLogger(logger),
		promote.WithMaxRetries(c.PromotionRetries),
	)
}

func (c *ServerConfig) buildIndex(ctx context.Context, rt *Runtime) (ingest.CoordinateIndex, error) {
	switch c.DatabaseType {
	case "memory":
		return repomemory.New(), nil
	case "postgres":
		pool, err := c.connectPostgres(ctx)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)

		repo := repopg.NewWithPool(pool)
		if c.AutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("failed to migrate coordinate index: %w", err)
			}
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) connectPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	if c.DBSchema != "" {
		searchPath := "SET search_path TO " + pgx.Identifier{c.DBSchema}.Sanitize()
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, searchPath)
			return err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

func (c *ServerConfig) buildStore(ctx context.Context, rt *Runtime) (ingest.ContentStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		backend, err := fsstorage.New(fsstorage.Config{BaseDir: c.StorageDir})
		if err != nil {
			return nil, fmt.Errorf("failed to create fs storage: %w", err)
		}
		rt.StaticRoot = backend.Root()
		return backend, nil
	case "s3":
		backend, err := s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			Prefix:                 c.S3.Prefix,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			EnableSSE:              c.S3.EnableSSE,
			SSEAlgorithm:           c.S3.SSEAlgorithm,
			SSEKMSKeyID:            c.S3.SSEKMSKeyID,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 storage: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

func (c *ServerConfig) buildAuthorizer() ingest.Authorizer {
	if c.AllowAnyUser {
		return ingest.AuthenticatedAuthorizer{}
	}
	return ingest.NewGroupAuthorizer(c.GroupGrants)
}
