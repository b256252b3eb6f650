package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordinalkernel/tradekernel/internal/config"
	"github.com/ordinalkernel/tradekernel/internal/signal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	adapter, err := NewFSAdapter(t.TempDir())
	require.NoError(t, err)
	return New(adapter)
}

func TestStore_ReadAbsentReturnsFalse(t *testing.T) {
	st := newTestStore(t)
	_, ok := st.Read(signal.Key{Strategy: "s", Symbol: "BTC/USDT"})
	assert.False(t, ok)
}

func TestStore_WriteAtomicThenReadReturnsCopy(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	key := signal.Key{Strategy: "s", Symbol: "BTC/USDT"}
	tracked := signal.Tracked{ID: "x", Strategy: "s", Symbol: "BTC/USDT", State: signal.StateOpened}

	require.NoError(t, st.WriteAtomic(ctx, tracked))

	got, ok := st.Read(key)
	require.True(t, ok)
	assert.Equal(t, "x", got.ID)

	// Mutating the returned value must not affect the stored slot
	// (consumers receive value copies, never aliased state).
	got.ID = "mutated"
	got2, _ := st.Read(key)
	assert.Equal(t, "x", got2.ID)
}

func TestStore_ClearEmptiesSlot(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	key := signal.Key{Strategy: "s", Symbol: "BTC/USDT"}
	require.NoError(t, st.WriteAtomic(ctx, signal.Tracked{ID: "x", Strategy: "s", Symbol: "BTC/USDT", State: signal.StateClosed}))

	require.NoError(t, st.Clear(ctx, key))

	_, ok := st.Read(key)
	assert.False(t, ok)
}

func TestStore_Load_RecoversPersistedSignalAcrossProcesses(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	key := signal.Key{Strategy: "s", Symbol: "BTC/USDT"}

	adapter1, err := NewFSAdapter(dir)
	require.NoError(t, err)
	firstProcess := New(adapter1)
	tracked := signal.Tracked{
		ID: "x", Strategy: "s", Symbol: "BTC/USDT", State: signal.StateOpened,
		PriceOpenActual: 42000, OpenedAt: time.Now().UTC(),
	}
	require.NoError(t, firstProcess.WriteAtomic(ctx, tracked))

	// Simulate a crash and restart: a fresh Store backed by the same
	// directory recovers the signal via Load.
	adapter2, err := NewFSAdapter(dir)
	require.NoError(t, err)
	secondProcess := New(adapter2)
	require.NoError(t, secondProcess.Load(ctx, key))

	got, ok := secondProcess.Read(key)
	require.True(t, ok)
	assert.Equal(t, signal.StateOpened, got.State)
	assert.Equal(t, 42000.0, got.PriceOpenActual)
}

func TestStore_Load_IsSingleshot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	key := signal.Key{Strategy: "s", Symbol: "BTC/USDT"}

	adapter, err := NewFSAdapter(dir)
	require.NoError(t, err)
	st := New(adapter)
	require.NoError(t, st.WriteAtomic(ctx, signal.Tracked{ID: "x", Strategy: "s", Symbol: "BTC/USDT", State: signal.StateOpened}))
	require.NoError(t, st.Load(ctx, key))

	// Persist a different record directly via the adapter, bypassing
	// the in-memory Store, then Load again: because Load is singleshot
	// per key, the in-memory slot must not change.
	require.NoError(t, adapter.WriteAtomic(ctx, key.String(), []byte(`{"id":"y","state":"closed"}`)))
	require.NoError(t, st.Load(ctx, key))

	got, ok := st.Read(key)
	require.True(t, ok)
	assert.Equal(t, "x", got.ID, "second Load call must be a no-op")
}

func TestStore_Load_KeyMismatchIsFatal(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	adapter, err := NewFSAdapter(dir)
	require.NoError(t, err)

	// Persist a record for a different symbol under this slot's key.
	mismatchKey := signal.Key{Strategy: "s", Symbol: "BTC/USDT"}
	require.NoError(t, adapter.WriteAtomic(ctx, mismatchKey.String(), []byte(`{"id":"x","strategy":"s","symbol":"ETH/USDT","state":"opened"}`)))

	st := New(adapter)
	err = st.Load(ctx, mismatchKey)
	require.Error(t, err)
	assert.True(t, config.IsKind(err, config.KindFatal))
}

func TestStore_Snapshot_OnlyReturnsNonTerminalForGivenKeys(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	openKey := signal.Key{Strategy: "a", Symbol: "BTC/USDT"}
	closedKey := signal.Key{Strategy: "b", Symbol: "BTC/USDT"}
	otherKey := signal.Key{Strategy: "c", Symbol: "BTC/USDT"}

	require.NoError(t, st.WriteAtomic(ctx, signal.Tracked{ID: "1", Strategy: "a", Symbol: "BTC/USDT", State: signal.StateActive}))
	require.NoError(t, st.WriteAtomic(ctx, signal.Tracked{ID: "2", Strategy: "b", Symbol: "BTC/USDT", State: signal.StateClosed}))
	require.NoError(t, st.WriteAtomic(ctx, signal.Tracked{ID: "3", Strategy: "c", Symbol: "BTC/USDT", State: signal.StateActive}))

	snap := st.Snapshot([]signal.Key{openKey, closedKey})
	require.Len(t, snap, 1)
	assert.Equal(t, "1", snap[0].ID)
	_ = otherKey
}

func TestStore_Keys_ListsEveryPopulatedSlot(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.WriteAtomic(ctx, signal.Tracked{ID: "1", Strategy: "a", Symbol: "BTC/USDT", State: signal.StateActive}))
	require.NoError(t, st.WriteAtomic(ctx, signal.Tracked{ID: "2", Strategy: "b", Symbol: "ETH/USDT", State: signal.StateActive}))

	keys := st.Keys()
	assert.Len(t, keys, 2)
}
