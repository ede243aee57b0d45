package config

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Store is the persistence seam a Manager needs (internal/store.Store
// satisfies it) — kept as an interface here so config stays independent of
// the store package.
type Store interface {
	GetSystemConfig() (*RuntimeConfig, int, error)
	SaveSystemConfig(cfg *RuntimeConfig, version int, now time.Time) error
}

// Manager owns the hot-reloadable RuntimeConfig: an atomic.Pointer read by
// every component, and the persist-then-swap path behind PATCH
// /api/v1/system/config (SPEC_FULL.md §4.K), grounded on the reference's
// ControlPlaneService.PatchRuntimeConfig pipeline (validate → persist →
// atomic swap, with a locally cached version seeded from the persisted row
// at construction).
type Manager struct {
	ptr atomic.Pointer[RuntimeConfig]

	mu      sync.Mutex
	store   Store
	version int
}

// NewManager loads the persisted config (or seeds defaults if none exists
// yet) and returns a ready Manager.
func NewManager(store Store) (*Manager, error) {
	cfg, version, err := store.GetSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("load persisted system config: %w", err)
	}
	if cfg == nil {
		cfg = NewDefaultRuntimeConfig()
		version = 0
	}
	m := &Manager{store: store, version: version}
	m.ptr.Store(cfg)
	return m, nil
}

// Current returns a snapshot pointer to the live config. Safe to call from
// any goroutine at any frequency, matching every caller's own cfg() closure
// idiom (internal/lease, internal/stock, internal/recovery).
func (m *Manager) Current() *RuntimeConfig {
	return m.ptr.Load()
}

// Patch deep-copies the current config, applies patch, persists the result
// under a bumped version, and only then swaps the atomic pointer — a failed
// persist never partially applies.
func (m *Manager) Patch(patch RuntimeConfigPatch) (*RuntimeConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := *m.ptr.Load()
	current.Patch(patch)

	newVersion := m.version + 1
	if err := m.store.SaveSystemConfig(&current, newVersion, time.Now()); err != nil {
		return nil, fmt.Errorf("persist system config: %w", err)
	}

	m.version = newVersion
	m.ptr.Store(&current)
	return &current, nil
}
