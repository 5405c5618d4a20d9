package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-repository/pkg/ingest"
	"github.com/tendant/simple-repository/pkg/ingest/repo/memory"
)

var coord = ingest.Coordinate{Group: "org.acme", Name: "lib", Version: "1.0"}

func TestRepository_FindMissing(t *testing.T) {
	repo := memory.New()
	_, err := repo.Find(context.Background(), coord)
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrCoordinateNotFound)

	ok, err := repo.Exists(context.Background(), coord)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_InsertUpdate(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, "alice", ingest.Descriptor{Coordinate: coord}))

	err := repo.Insert(ctx, "bob", ingest.Descriptor{Coordinate: coord})
	assert.ErrorIs(t, err, ingest.ErrCoordinateExists)

	require.NoError(t, repo.Update(ctx, "bob", ingest.Descriptor{Coordinate: coord, Description: "refreshed"}))

	entry, err := repo.Find(ctx, coord)
	require.NoError(t, err)
	assert.Equal(t, "refreshed", entry.Descriptor.Description)
	assert.Equal(t, ingest.Identity("alice"), entry.CreatedBy)
	assert.Equal(t, ingest.Identity("bob"), entry.UpdatedBy)
	assert.Equal(t, "pkg:maven/org.acme/lib@1.0", entry.PackageURL)

	missing := ingest.Coordinate{Group: "org.acme", Name: "other", Version: "1.0"}
	err = repo.Update(ctx, "bob", ingest.Descriptor{Coordinate: missing})
	assert.ErrorIs(t, err, ingest.ErrCoordinateNotFound)
}

func TestRepository_InsertRejectsIncompleteCoordinate(t *testing.T) {
	repo := memory.New()
	err := repo.Insert(context.Background(), "alice", ingest.Descriptor{Coordinate: ingest.Coordinate{Group: "acme"}})
	require.Error(t, err)
}

func TestRepository_UpdateRejectsInvalidCoordinate(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	err := repo.Update(ctx, "alice", ingest.Descriptor{Coordinate: ingest.Coordinate{Group: "acme", Name: "lib/x", Version: "1.0"}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ingest.ErrCoordinateNotFound)
	assert.Contains(t, err.Error(), "path separator")

	var indexErr *ingest.IndexError
	require.ErrorAs(t, err, &indexErr)
	assert.Equal(t, "update", indexErr.Op)
}

func TestRepository_UpsertModes(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	inserted, err := repo.Upsert(ctx, "alice", ingest.Descriptor{Coordinate: coord, Description: "first"}, ingest.UpsertKeep)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Upsert(ctx, "bob", ingest.Descriptor{Coordinate: coord, Description: "ignored"}, ingest.UpsertKeep)
	require.NoError(t, err)
	assert.False(t, inserted)

	entry, _ := repo.Find(ctx, coord)
	assert.Equal(t, "first", entry.Descriptor.Description)
	assert.Equal(t, ingest.Identity("alice"), entry.UpdatedBy)

	inserted, err = repo.Upsert(ctx, "bob", ingest.Descriptor{Coordinate: coord, Description: "second"}, ingest.UpsertRefresh)
	require.NoError(t, err)
	assert.False(t, inserted)

	entry, _ = repo.Find(ctx, coord)
	assert.Equal(t, "second", entry.Descriptor.Description)
	assert.Equal(t, ingest.Identity("bob"), entry.UpdatedBy)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepository_FindReturnsCopy(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, "alice", ingest.Descriptor{Coordinate: coord, Licenses: []string{"MIT"}}))

	entry, _ := repo.Find(ctx, coord)
	entry.Descriptor.Licenses[0] = "GPL"

	again, _ := repo.Find(ctx, coord)
	assert.Equal(t, "MIT", again.Descriptor.Licenses[0])
}

func TestRepository_ConcurrentUpsertSingleEntry(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	insertedCount := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			who := ingest.Identity(fmt.Sprintf("user-%d", i))
			inserted, err := repo.Upsert(ctx, who, ingest.Descriptor{Coordinate: coord}, ingest.UpsertKeep)
			assert.NoError(t, err)
			if inserted {
				mu.Lock()
				insertedCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, insertedCount)
	all, _ := repo.List(ctx)
	assert.Len(t, all, 1)
}
