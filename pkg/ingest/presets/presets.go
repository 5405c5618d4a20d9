// Package presets builds ready-to-use repository setups for common situations.
package presets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/tendant/simple-repository/pkg/ingest"
	"github.com/tendant/simple-repository/pkg/ingest/config"
	"github.com/tendant/simple-repository/pkg/ingest/descriptor/pom"
	memoryrepo "github.com/tendant/simple-repository/pkg/ingest/repo/memory"
	memorystorage "github.com/tendant/simple-repository/pkg/ingest/storage/memory"
)

// NewDevelopment creates a runtime for local development.
//
// Features:
//   - In-memory coordinate index (no database needed)
//   - Filesystem storage at ./dev-data/ served back over GET
//   - Any authenticated identity may deploy to any group
//   - Debug logging
//
// The returned cleanup closes the runtime and removes the storage directory.
//
// Example:
//
//	rt, cleanup, err := presets.NewDevelopment(presets.WithDevUser("dev", hash))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (*config.Runtime, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
		users:      map[string]string{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	configOpts := []config.Option{
		config.WithEnvironment("development"),
		config.WithFilesystemStorage(cfg.storageDir),
		config.WithAllowAnyUser(true),
		config.WithLogging("debug", "text"),
	}
	if cfg.jwtSecret != "" {
		configOpts = append(configOpts, config.WithJWTSecret(cfg.jwtSecret))
	}
	for user, hash := range cfg.users {
		configOpts = append(configOpts, config.WithBasicAuthUser(user, hash))
	}

	serverConfig, err := config.Load(configOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load development config: %w", err)
	}
	logger, err := serverConfig.NewLogger(os.Stderr)
	if err != nil {
		return nil, nil, err
	}

	rt, err := serverConfig.BuildService(context.Background(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build development runtime: %w", err)
	}

	cleanup := func() {
		rt.Close()
		os.RemoveAll(cfg.storageDir)
	}
	return rt, cleanup, nil
}

// Fixture is an in-memory repository for tests. Store and Index are the
// concrete backends so tests can inspect what an upload left behind.
type Fixture struct {
	Service    ingest.Service
	Store      *memorystorage.Backend
	Index      *memoryrepo.Repository
	Queue      *ingest.Queue
	Authorizer *ingest.GroupAuthorizer
}

// NewTesting creates an in-memory repository for unit tests. The queue is
// closed when the test completes.
//
// Example:
//
//	func TestDeploy(t *testing.T) {
//	    fx := presets.NewTesting(t, presets.WithGrant("alice", "org.acme"))
//	    ...
//	}
func NewTesting(t testing.TB, opts ...TestingOption) *Fixture {
	t.Helper()

	cfg := &testConfig{grants: map[ingest.Identity][]string{}}
	for _, opt := range opts {
		opt(cfg)
	}

	fx := &Fixture{
		Store:      memorystorage.New(),
		Index:      memoryrepo.New(),
		Queue:      ingest.NewQueue(),
		Authorizer: ingest.NewGroupAuthorizer(cfg.grants),
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	svc, err := ingest.New(
		ingest.WithContentStore(fx.Store),
		ingest.WithIndex(fx.Index),
		ingest.WithAuthorizer(fx.Authorizer),
		ingest.WithDescriptorParser(pom.NewParser()),
		ingest.WithQueue(fx.Queue),
		ingest.WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	fx.Service = svc

	t.Cleanup(fx.Queue.Close)
	return fx
}

// NewProduction builds a runtime from the environment with production
// validation: a persistent store and index plus at least one credential
// source are required.
func NewProduction(ctx context.Context, logger *slog.Logger, opts ...config.Option) (*config.Runtime, *config.ServerConfig, error) {
	all := append([]config.Option{config.WithEnv(), config.WithEnvironment("production")}, opts...)
	serverConfig, err := config.Load(all...)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid production configuration: %w", err)
	}

	rt, err := serverConfig.BuildService(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	return rt, serverConfig, nil
}

// devConfig holds development preset configuration
type devConfig struct {
	storageDir string
	jwtSecret  string
	users      map[string]string
}

// testConfig holds testing preset configuration
type testConfig struct {
	grants map[ingest.Identity][]string
	logger *slog.Logger
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// WithDevJWTSecret enables bearer tokens
func WithDevJWTSecret(secret string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.jwtSecret = secret
	}
}

// WithDevUser adds a Basic-auth user with a bcrypt hash
func WithDevUser(user, bcryptHash string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.users[user] = bcryptHash
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithGrant lets who deploy under group
func WithGrant(who ingest.Identity, group string) TestingOption {
	return func(cfg *testConfig) {
		cfg.grants[who] = append(cfg.grants[who], group)
	}
}

// WithTestLogger routes service logs to logger instead of discarding them
func WithTestLogger(logger *slog.Logger) TestingOption {
	return func(cfg *testConfig) {
		cfg.logger = logger
	}
}
