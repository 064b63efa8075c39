// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndSummarize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := []RunRecord{
		{SessionID: "s1", Kind: "agent", Name: "summarizer", Success: true, Duration: 100 * time.Millisecond, Tokens: 50},
		{SessionID: "s1", Kind: "agent", Name: "summarizer", Success: false, Duration: 200 * time.Millisecond},
		{SessionID: "s2", Kind: "workflow", Name: "release", Success: true, Duration: 2 * time.Second, Tokens: 300},
	}
	for _, rec := range records {
		require.NoError(t, store.RecordRun(ctx, rec))
	}

	sum, err := store.Summarize(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.TotalRuns)
	assert.Equal(t, int64(2), sum.Successful)
	assert.Equal(t, int64(1), sum.Failed)
	assert.Equal(t, int64(350), sum.TotalTokens)
	assert.Nil(t, sum.ByEntity)
}

func TestSummarize_Detail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordRun(ctx, RunRecord{
			SessionID: "s1", Kind: "agent", Name: "summarizer",
			Success: i != 0, Duration: 100 * time.Millisecond,
		}))
	}
	require.NoError(t, store.RecordRun(ctx, RunRecord{
		SessionID: "s1", Kind: "workflow", Name: "release", Success: true,
		Duration: time.Second,
	}))

	sum, err := store.Summarize(ctx, true)
	require.NoError(t, err)
	require.Len(t, sum.ByEntity, 2)

	// Ordered by run count descending.
	assert.Equal(t, "summarizer", sum.ByEntity[0].Name)
	assert.Equal(t, int64(3), sum.ByEntity[0].Runs)
	assert.Equal(t, int64(1), sum.ByEntity[0].Failures)
	assert.Equal(t, int64(100), sum.ByEntity[0].AvgDurationMs)
	assert.Equal(t, "release", sum.ByEntity[1].Name)
}

func TestSessionRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordRun(ctx, RunRecord{SessionID: "s1", Kind: "agent", Name: "a", Success: true}))
	require.NoError(t, store.RecordRun(ctx, RunRecord{SessionID: "s2", Kind: "agent", Name: "a", Success: true}))

	n, err := store.SessionRuns(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNilStore(t *testing.T) {
	var store *Store

	require.NoError(t, store.RecordRun(context.Background(), RunRecord{}))
	sum, err := store.Summarize(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.TotalRuns)
	require.NoError(t, store.Close())
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.RecordRun(context.Background(), RunRecord{
		SessionID: "s1", Kind: "agent", Name: "a", Success: true,
	}))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	sum, err := store.Summarize(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.TotalRuns)
}
