// Package strategy implements the priority-ordered strategy engine of
// spec §4.6 and the two concrete strategies of §4.7/§4.8.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/netixx/flexsentry/internal/metrics"
	"github.com/netixx/flexsentry/internal/registry"
	"github.com/netixx/flexsentry/internal/xlog"
)

// Priority tiers, smaller runs first. Matches spec §4.6.
const (
	HighestPriority = 0
	HighPriority    = 2
	NormalPriority  = 4
	LowPriority     = 8
	LowestPriority  = 16
)

// ErrInvalidStrategy is returned when a nil Strategy is registered with
// the engine.
var ErrInvalidStrategy = errors.New("strategy: invalid strategy")

// ErrInvalidService is returned when a strategy requires a service name
// that is not registered with the engine's registry.
var ErrInvalidService = errors.New("strategy: required service not registered")

// Strategy is one pluggable policy run every cycle by the Engine.
type Strategy interface {
	Name() string
	RequiredServices() []string
	Apply(ctx context.Context, eng *Engine)
	Cleanup(ctx context.Context, eng *Engine)
}

type entry struct {
	strategy Strategy
	tier     int
	seq      int
}

// Engine holds the priority-ordered collection of strategies and the
// service registry they consult. Strategies always run strictly
// sequentially, in (tier, insertion-sequence) order; no two ever run
// concurrently, per spec §5.
type Engine struct {
	mu       sync.Mutex
	registry *registry.Registry
	entries  []entry
	seq      int
}

// NewEngine creates an engine backed by the given service registry.
func NewEngine(reg *registry.Registry) *Engine {
	return &Engine{registry: reg}
}

// Registry exposes the underlying service registry so strategy
// implementations can look services up by name.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// AddStrategy registers a strategy with the engine at the given priority
// tier (use NormalPriority if unsure). Fails with ErrInvalidService if any
// of the strategy's RequiredServices are not registered.
func (e *Engine) AddStrategy(s Strategy, tier int) error {
	if s == nil {
		return ErrInvalidStrategy
	}
	for _, name := range s.RequiredServices() {
		if !e.registry.Has(name) {
			return fmt.Errorf("%w: strategy %q requires %q", ErrInvalidService, s.Name(), name)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	seq := e.seq
	e.seq++
	e.entries = append(e.entries, entry{strategy: s, tier: tier, seq: seq})
	sort.SliceStable(e.entries, func(i, j int) bool {
		if e.entries[i].tier != e.entries[j].tier {
			return e.entries[i].tier < e.entries[j].tier
		}
		return e.entries[i].seq < e.entries[j].seq
	})
	return nil
}

// ApplyStrategies runs every registered strategy's Apply method once, in
// priority order.
func (e *Engine) ApplyStrategies(ctx context.Context) {
	log := xlog.FromContext(ctx, "strategy-engine")
	e.mu.Lock()
	ordered := append([]entry(nil), e.entries...)
	e.mu.Unlock()

	for _, en := range ordered {
		log.Debug().Str("strategy", en.strategy.Name()).Int("tier", en.tier).Int("seq", en.seq).Msg("applying strategy")
		start := time.Now()
		en.strategy.Apply(ctx, e)
		metrics.StrategyApplyDuration.WithLabelValues(en.strategy.Name()).Observe(time.Since(start).Seconds())
	}
}

// CleanupStrategies runs every registered strategy's Cleanup method once,
// in the same priority order as ApplyStrategies.
func (e *Engine) CleanupStrategies(ctx context.Context) {
	e.mu.Lock()
	ordered := append([]entry(nil), e.entries...)
	e.mu.Unlock()

	for _, en := range ordered {
		en.strategy.Cleanup(ctx, e)
	}
}
