package postgres

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-repository/pkg/ingest"
)

var testCoord = ingest.Coordinate{Group: "org.acme", Name: "lib", Version: "1.0"}

func TestRepository_InsertFind(t *testing.T) {
	RunTest(t, func(t *testing.T, db *TestDB) {
		repo := NewWithPool(db.Pool)
		ctx := context.Background()

		desc := ingest.Descriptor{
			Coordinate:  testCoord,
			Description: "Acme library",
			Licenses:    []string{"MIT"},
		}
		require.NoError(t, repo.Insert(ctx, "alice", desc))

		entry, err := repo.Find(ctx, testCoord)
		require.NoError(t, err)
		assert.Equal(t, testCoord, entry.Coordinate())
		assert.Equal(t, "Acme library", entry.Descriptor.Description)
		assert.Equal(t, []string{"MIT"}, entry.Descriptor.Licenses)
		assert.Equal(t, "pkg:maven/org.acme/lib@1.0", entry.PackageURL)
		assert.Equal(t, ingest.Identity("alice"), entry.CreatedBy)

		err = repo.Insert(ctx, "bob", desc)
		assert.ErrorIs(t, err, ingest.ErrCoordinateExists)

		ok, err := repo.Exists(ctx, testCoord)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestRepository_FindMissing(t *testing.T) {
	RunTest(t, func(t *testing.T, db *TestDB) {
		repo := NewWithPool(db.Pool)
		_, err := repo.Find(context.Background(), testCoord)
		assert.ErrorIs(t, err, ingest.ErrCoordinateNotFound)
	})
}

func TestRepository_Update(t *testing.T) {
	RunTest(t, func(t *testing.T, db *TestDB) {
		repo := NewWithPool(db.Pool)
		ctx := context.Background()

		err := repo.Update(ctx, "bob", ingest.Descriptor{Coordinate: testCoord})
		assert.ErrorIs(t, err, ingest.ErrCoordinateNotFound)

		require.NoError(t, repo.Insert(ctx, "alice", ingest.Descriptor{Coordinate: testCoord}))
		require.NoError(t, repo.Update(ctx, "bob", ingest.Descriptor{Coordinate: testCoord, URL: "https://acme.org"}))

		entry, err := repo.Find(ctx, testCoord)
		require.NoError(t, err)
		assert.Equal(t, "https://acme.org", entry.Descriptor.URL)
		assert.Equal(t, ingest.Identity("alice"), entry.CreatedBy)
		assert.Equal(t, ingest.Identity("bob"), entry.UpdatedBy)
	})
}

func TestRepository_UpsertModes(t *testing.T) {
	RunTest(t, func(t *testing.T, db *TestDB) {
		repo := NewWithPool(db.Pool)
		ctx := context.Background()

		inserted, err := repo.Upsert(ctx, "alice", ingest.Descriptor{Coordinate: testCoord}, ingest.UpsertKeep)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = repo.Upsert(ctx, "bob", ingest.Descriptor{Coordinate: testCoord, Description: "x"}, ingest.UpsertKeep)
		require.NoError(t, err)
		assert.False(t, inserted)

		entry, _ := repo.Find(ctx, testCoord)
		assert.Empty(t, entry.Descriptor.Description)

		inserted, err = repo.Upsert(ctx, "bob", ingest.Descriptor{Coordinate: testCoord, Description: "y"}, ingest.UpsertRefresh)
		require.NoError(t, err)
		assert.False(t, inserted)

		entry, _ = repo.Find(ctx, testCoord)
		assert.Equal(t, "y", entry.Descriptor.Description)
		assert.Equal(t, ingest.Identity("bob"), entry.UpdatedBy)

		other := ingest.Coordinate{Group: "org.acme", Name: "lib", Version: "2.0"}
		inserted, err = repo.Upsert(ctx, "bob", ingest.Descriptor{Coordinate: other}, ingest.UpsertRefresh)
		require.NoError(t, err)
		assert.True(t, inserted)
	})
}

func TestRepository_ConcurrentUpsert(t *testing.T) {
	RunTest(t, func(t *testing.T, db *TestDB) {
		repo := NewWithPool(db.Pool)
		ctx := context.Background()

		var inserted atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := repo.Upsert(ctx, ingest.Identity(fmt.Sprintf("user-%d", i)),
					ingest.Descriptor{Coordinate: testCoord}, ingest.UpsertKeep)
				assert.NoError(t, err)
				if ok {
					inserted.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), inserted.Load())

		var count int
		err := db.Pool.QueryRow(ctx, "SELECT count(*) FROM coordinates").Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestRepository_RejectsInvalidDescriptor(t *testing.T) {
	repo := New(nil)
	_, err := repo.Upsert(context.Background(), "alice", ingest.Descriptor{}, ingest.UpsertKeep)
	require.Error(t, err)

	var indexErr *ingest.IndexError
	require.ErrorAs(t, err, &indexErr)
	assert.Equal(t, "upsert", indexErr.Op)
}
