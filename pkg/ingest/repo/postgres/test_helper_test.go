package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// TestDB represents a test database connection
type TestDB struct {
	Pool *pgxpool.Pool
}

// NewTestDB connects to TEST_DATABASE_URL
func NewTestDB(t *testing.T, connString string) *TestDB {
	t.Helper()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "Failed to connect to test database")

	err = pool.Ping(ctx)
	require.NoError(t, err, "Failed to ping test database")

	return &TestDB{Pool: pool}
}

// Setup creates the coordinates table
func (db *TestDB) Setup(t *testing.T) {
	t.Helper()
	err := NewWithPool(db.Pool).Migrate(context.Background())
	require.NoError(t, err, "Failed to migrate coordinates table")
}

// Cleanup removes all test data from the database
func (db *TestDB) Cleanup(t *testing.T) {
	t.Helper()
	_, err := db.Pool.Exec(context.Background(), "TRUNCATE coordinates")
	require.NoError(t, err, "Failed to truncate coordinates table")
}

// RunTest runs a test with database setup and cleanup
func RunTest(t *testing.T, testFunc func(t *testing.T, db *TestDB)) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db := NewTestDB(t, connString)
	defer db.Pool.Close()

	db.Setup(t)
	db.Cleanup(t)
	testFunc(t, db)
}
