package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainbox0/brainbox/internal/graph"
	"github.com/brainbox0/brainbox/internal/testutil"
)

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	store, err := graph.NewStore(db.Pool, nil)
	require.NoError(t, err)

	t.Run("entity dedup is case-insensitive", func(t *testing.T) {
		id1, err := store.UpsertEntity(ctx, "Alice", "PERSON", "a colleague", "chunk_1")
		require.NoError(t, err)
		id2, err := store.UpsertEntity(ctx, "alice", "person", "", "chunk_2")
		require.NoError(t, err)
		assert.Equal(t, id1, id2)

		ent, err := store.EntityByID(ctx, id1)
		require.NoError(t, err)
		assert.Equal(t, "Alice", ent.Name, "first-seen casing is kept")
		assert.Equal(t, int64(2), ent.Weight, "one unit of weight per distinct chunk")
		assert.Equal(t, "a colleague", ent.Description)
	})

	t.Run("repeated chunk does not inflate weight", func(t *testing.T) {
		id, err := store.UpsertEntity(ctx, "Alice", "PERSON", "", "chunk_1")
		require.NoError(t, err)
		ent, err := store.EntityByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(2), ent.Weight)
	})

	t.Run("same name different type stays separate", func(t *testing.T) {
		orgID, err := store.UpsertEntity(ctx, "Alice", "ORG", "", "chunk_3")
		require.NoError(t, err)
		personID := graph.NewEntityID("Alice", "PERSON")
		assert.NotEqual(t, personID, orgID)
	})

	t.Run("relation provenance tracks distinct chunks", func(t *testing.T) {
		src, err := store.UpsertEntity(ctx, "Bob", "PERSON", "", "chunk_4")
		require.NoError(t, err)
		dst, err := store.UpsertEntity(ctx, "Acme", "ORG", "", "chunk_4")
		require.NoError(t, err)

		relID, err := store.UpsertRelation(ctx, src, dst, "works_at", "chunk_4")
		require.NoError(t, err)
		_, err = store.UpsertRelation(ctx, src, dst, "WORKS_AT", "chunk_4")
		require.NoError(t, err)
		_, err = store.UpsertRelation(ctx, src, dst, "WORKS_AT", "chunk_5")
		require.NoError(t, err)

		rels, err := store.RelationsOf(ctx, []string{src})
		require.NoError(t, err)
		require.Len(t, rels, 1, "lowercase label merges into the same edge")
		assert.Equal(t, relID, rels[0].ID)
		assert.Equal(t, int64(2), rels[0].Weight)
		assert.ElementsMatch(t, []string{"chunk_4", "chunk_5"}, rels[0].Provenance)
	})

	t.Run("find entity falls back to substring match", func(t *testing.T) {
		ent, err := store.FindEntity(ctx, "Acme")
		require.NoError(t, err)
		assert.Equal(t, "Acme", ent.Name)

		_, err = store.FindEntity(ctx, "nope-not-here")
		assert.ErrorIs(t, err, graph.ErrEntityNotFound)
	})

	t.Run("provenance removal garbage-collects orphans", func(t *testing.T) {
		lonelyID, err := store.UpsertEntity(ctx, "Ephemeral", "CONCEPT", "", "chunk_gone")
		require.NoError(t, err)
		bobID := graph.NewEntityID("Bob", "PERSON")

		require.NoError(t, store.RemoveProvenance(ctx, []string{"chunk_gone", "chunk_5"}))

		_, err = store.EntityByID(ctx, lonelyID)
		assert.ErrorIs(t, err, graph.ErrEntityNotFound, "entity with no remaining evidence is deleted")

		rels, err := store.RelationsOf(ctx, []string{bobID})
		require.NoError(t, err)
		require.Len(t, rels, 1)
		assert.Equal(t, int64(1), rels[0].Weight, "weight shrinks with its provenance")
		assert.Equal(t, []string{"chunk_4"}, rels[0].Provenance)
	})

	t.Run("counts", func(t *testing.T) {
		entities, relations, err := store.Counts(ctx)
		require.NoError(t, err)
		assert.Positive(t, entities)
		assert.Positive(t, relations)
	})
}

func TestStoreIntegration_ConcurrentUpserts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	store, err := graph.NewStore(db.Pool, nil)
	require.NoError(t, err)

	const workers = 8
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func(n int) {
			_, err := store.UpsertEntity(ctx, "Shared", "CONCEPT", "", "chunk_concurrent")
			errs <- err
		}(i)
	}
	for i := 0; i < workers; i++ {
		require.NoError(t, <-errs)
	}

	ent, err := store.FindEntity(ctx, "Shared")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ent.Weight, "same chunk observed concurrently still counts once")
}
