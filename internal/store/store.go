// Package store implements the signal store: a per-(strategy,symbol)
// slot holding at most one tracked signal, backed by a pluggable
// persistence Adapter that must write atomically.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ordinalkernel/tradekernel/internal/config"
	"github.com/ordinalkernel/tradekernel/internal/signal"
)

// Adapter is the persistence contract: read(key) -> value | absent,
// writeAtomic(key, value) -> void. Keys are "(strategy,symbol)"
// strings. Implementations MUST make WriteAtomic crash-safe (temp-file
// + rename, or an equivalent transactional write).
type Adapter interface {
	Read(ctx context.Context, key string) (value []byte, ok bool, err error)
	WriteAtomic(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store holds one in-memory slot per (strategy,symbol), mirrored to
// the Adapter on every write. Slots are snapshotted copy-on-read for
// the portfolio view: callers get value copies, never a pointer into
// live state.
type Store struct {
	adapter Adapter
	mu      sync.RWMutex
	slots   map[signal.Key]*signal.Tracked
	loaded  map[signal.Key]bool
}

// New builds a Store over adapter.
func New(adapter Adapter) *Store {
	return &Store{
		adapter: adapter,
		slots:   map[signal.Key]*signal.Tracked{},
		loaded:  map[signal.Key]bool{},
	}
}

// Load performs live-mode startup recovery: it calls the
// adapter exactly once per slot ("singleshot") and populates the
// in-memory slot from whatever was persisted. Calling Load twice for the
// same key is a no-op; backtest mode never calls Load and starts with an
// empty slot.
func (s *Store) Load(ctx context.Context, key signal.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded[key] {
		return nil
	}
	s.loaded[key] = true

	raw, ok, err := s.adapter.Read(ctx, key.String())
	if err != nil {
		return config.NewKernelError(config.KindAdapter, "store.Load", err)
	}
	if !ok {
		return nil
	}
	var tracked signal.Tracked
	if err := json.Unmarshal(raw, &tracked); err != nil {
		return config.NewKernelError(config.KindAdapter, "store.Load", fmt.Errorf("corrupt persisted signal: %w", err))
	}
	if tracked.Strategy != key.Strategy || tracked.Symbol != key.Symbol {
		return config.NewKernelError(config.KindFatal, "store.Load",
			fmt.Errorf("persisted signal key mismatch: slot %s holds signal for %s/%s", key, tracked.Strategy, tracked.Symbol))
	}
	s.slots[key] = &tracked
	return nil
}

// Read returns a value-copy of the slot's current signal, or
// (zero-value, false) if empty. It never returns a pointer into live
// state; the at-most-one-non-terminal-signal rule is enforced by the
// lifecycle engine's write path, not by aliasing.
func (s *Store) Read(key signal.Key) (signal.Tracked, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.slots[key]
	if !ok {
		return signal.Tracked{}, false
	}
	return *t, true
}

// WriteAtomic persists tracked via the adapter's atomic write, then
// updates the in-memory slot. The adapter write happens before the
// in-memory update so a crash mid-persist never leaves memory ahead of
// disk.
func (s *Store) WriteAtomic(ctx context.Context, tracked signal.Tracked) error {
	key := signal.Key{Strategy: tracked.Strategy, Symbol: tracked.Symbol}
	data, err := json.Marshal(tracked)
	if err != nil {
		return config.NewKernelError(config.KindRuntime, "store.WriteAtomic", err)
	}
	if err := s.adapter.WriteAtomic(ctx, key.String(), data); err != nil {
		return config.NewKernelError(config.KindAdapter, "store.WriteAtomic", err)
	}
	s.mu.Lock()
	cp := tracked
	s.slots[key] = &cp
	s.loaded[key] = true
	s.mu.Unlock()
	return nil
}

// Clear empties the slot; the Backtest Driver uses it to clean up an
// orphaned in-flight signal at the end of a run. Terminal signals written
// by the lifecycle engine stay in their slot.
func (s *Store) Clear(ctx context.Context, key signal.Key) error {
	if err := s.adapter.Delete(ctx, key.String()); err != nil {
		return config.NewKernelError(config.KindAdapter, "store.Clear", err)
	}
	s.mu.Lock()
	delete(s.slots, key)
	s.loaded[key] = true
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy-on-read slice of every non-terminal signal
// across the given keys, the raw material the Risk Validator assembles
// into a signal.PortfolioView.
func (s *Store) Snapshot(keys []signal.Key) []signal.Tracked {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]signal.Tracked, 0, len(keys))
	for _, k := range keys {
		if t, ok := s.slots[k]; ok && t.IsNonTerminal() {
			out = append(out, *t)
		}
	}
	return out
}

// Backend reports the adapter's backend name, used as a metrics label.
func (s *Store) Backend() string {
	if n, ok := s.adapter.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "custom"
}

// Keys returns every key with a populated slot, used by components that
// need to enumerate all tracked (strategy,symbol) pairs (e.g. building a
// portfolio view without a static registry of symbols).
func (s *Store) Keys() []signal.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]signal.Key, 0, len(s.slots))
	for k := range s.slots {
		out = append(out, k)
	}
	return out
}
