//go:build integration

package shared

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fincore/internal/platform/db/dbtest"
)

func TestIdempotencyStoreRoundTrip(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()
	store := NewIdempotencyStore(pool)

	require.NoError(t, store.CheckAndInsert(ctx, "req-1", "invoicing"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "req-1", "invoicing"), ErrIdempotencyConflict)
	require.NoError(t, store.CheckAndInsert(ctx, "req-1", "payroll"))

	require.NoError(t, store.Delete(ctx, "req-1", "invoicing"))
	require.NoError(t, store.CheckAndInsert(ctx, "req-1", "invoicing"))

	deleted, err := store.Cleanup(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestHistoryStoreListsTransitionsInOrder(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()
	store := NewHistoryStore(pool, nil)
	at := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordTransition(ctx, TransitionLog{Kind: "INVOICE", RefID: "inv-1", ActorID: 1, Action: "APPROVE", From: "DRAFT", To: "APPROVED", At: at}))
	require.NoError(t, store.RecordTransition(ctx, TransitionLog{Kind: "INVOICE", RefID: "inv-1", ActorID: 1, Action: "POST", From: "APPROVED", To: "POSTED", At: at.Add(time.Hour)}))
	require.NoError(t, store.RecordAudit(ctx, AuditLog{ActorID: 1, Action: "invoice.create", Entity: "invoice", EntityID: "inv-1"}))

	logs, err := store.ListTransitions(ctx, "INVOICE", "inv-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "APPROVED", logs[0].To)
	assert.Equal(t, "POSTED", logs[1].To)
}
