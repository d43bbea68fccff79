package shared

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyKeyValidation(t *testing.T) {
	store := NewIdempotencyStore(nil)
	ctx := context.Background()

	err := store.CheckAndInsert(ctx, "", "invoicing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key required")

	err = store.CheckAndInsert(ctx, strings.Repeat("k", 129), "invoicing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too long")

	err = store.Delete(ctx, "abc", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module required")
}

func TestNilIdempotencyStore(t *testing.T) {
	var store *IdempotencyStore
	assert.Error(t, store.CheckAndInsert(context.Background(), "abc", "invoicing"))
	removed, err := store.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.NoError(t, store.Delete(context.Background(), "abc", "invoicing"))
}
