package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elvinasadov/agroflow/pkg/domain"
)

// RunCheckpointStoreContract runs a suite of tests verifying that a
// CheckpointStore implementation adheres to the interface contract. Every
// backend (memory, redis, sqlite) runs this same suite.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	threadID := "contract-thread-" + time.Now().Format("20060102150405.000")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewState(threadID, "Pomidor nə vaxt suvarılmalıdır?", nil, nil)
		state.Intent = domain.IntentIrrigation
		state.NodesVisited = []string{"supervisor", "advisory"}
		state.ToolResults["rules-1"] = "drip irrigation every 3 days"

		err := store.Save(ctx, threadID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.ThreadID, loaded.ThreadID)
		assert.Equal(t, state.CurrentInput, loaded.CurrentInput)
		assert.Equal(t, domain.IntentIrrigation, loaded.Intent)
		assert.Equal(t, []string{"supervisor", "advisory"}, loaded.NodesVisited)
		assert.NotNil(t, loaded.ToolResults["rules-1"])
	})

	t.Run("Save is idempotent", func(t *testing.T) {
		state := domain.NewState(threadID, "input", nil, nil)
		state.CurrentResponse = "answer"

		require.NoError(t, store.Save(ctx, threadID, state))
		once, err := store.Load(ctx, threadID)
		require.NoError(t, err)

		require.NoError(t, store.Save(ctx, threadID, state))
		twice, err := store.Load(ctx, threadID)
		require.NoError(t, err)

		assert.Equal(t, once, twice, "double save must equal single save")
	})

	t.Run("Load isolation", func(t *testing.T) {
		state := domain.NewState(threadID, "input", nil, nil)
		require.NoError(t, store.Save(ctx, threadID, state))

		first, err := store.Load(ctx, threadID)
		require.NoError(t, err)
		first.Messages = append(first.Messages, domain.Message{Role: domain.RoleUser, Content: "mutation"})

		second, err := store.Load(ctx, threadID)
		require.NoError(t, err)
		assert.Empty(t, second.Messages, "caller mutation must not leak into the store")
	})

	t.Run("Load non-existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, threadID, domain.NewState(threadID, "x", nil, nil)))

		require.NoError(t, store.Delete(ctx, threadID))

		_, err := store.Load(ctx, threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound, "Load after Delete should return ErrThreadNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := threadID + "-1"
		id2 := threadID + "-2"
		require.NoError(t, store.Save(ctx, id1, domain.NewState(id1, "x", nil, nil)))
		require.NoError(t, store.Save(ctx, id2, domain.NewState(id2, "y", nil, nil)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		threads, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, threads, id1)
		assert.Contains(t, threads, id2)
	})
}
