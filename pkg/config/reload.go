package config

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/massgen-go/orchestrator/pkg/config/provider"
)

// ReloadGate watches a Provider for changes but only ever exposes a new
// Config between coordination calls: a file change detected while a call is
// in flight is staged and applied the next time Acquire is called with no
// call active. This matches the orchestrator's "never reload mid-call"
// requirement.
type ReloadGate struct {
	prov          provider.Provider
	knownAgentIDs map[string]bool

	mu      sync.Mutex
	current *Config
	staged  []byte // raw bytes of a detected-but-not-yet-applied change
	inUse   int32
}

// NewReloadGate loads the initial config and begins watching prov for
// changes. ctx governs the watch goroutine's lifetime.
func NewReloadGate(ctx context.Context, prov provider.Provider, knownAgentIDs map[string]bool) (*ReloadGate, error) {
	data, err := prov.Load(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(data, knownAgentIDs)
	if err != nil {
		return nil, err
	}

	g := &ReloadGate{prov: prov, knownAgentIDs: knownAgentIDs, current: cfg}

	changes, err := prov.Watch(ctx)
	if err != nil {
		slog.Warn("config hot reload unavailable", "error", err)
		return g, nil
	}
	go g.watchLoop(ctx, changes)
	return g, nil
}

func (g *ReloadGate) watchLoop(ctx context.Context, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			data, err := g.prov.Load(ctx)
			if err != nil {
				slog.Warn("config reload: read failed", "error", err)
				continue
			}
			g.mu.Lock()
			g.staged = data
			g.mu.Unlock()
		}
	}
}

// Acquire returns the config to use for a new coordination call and marks
// the gate in-use. It panics if called while a prior call's Release is
// still pending, since that would mean two coordination calls overlapping
// on one gate. A staged reload is applied here, never while in-use.
func (g *ReloadGate) Acquire() *Config {
	g.mu.Lock()
	defer g.mu.Unlock()

	if atomic.LoadInt32(&g.inUse) != 0 {
		panic("config.ReloadGate: Acquire called while previous call still in use")
	}

	if g.staged != nil {
		if cfg, err := Load(g.staged, g.knownAgentIDs); err != nil {
			slog.Error("config reload: new config invalid, keeping prior", "error", err)
		} else {
			g.current = cfg
			slog.Info("config reloaded")
		}
		g.staged = nil
	}
	atomic.StoreInt32(&g.inUse, 1)
	return g.current
}

// Release marks the gate as no longer serving an in-flight call, allowing
// the next Acquire to apply a staged reload.
func (g *ReloadGate) Release() {
	atomic.StoreInt32(&g.inUse, 0)
}
