// Package monitor implements the Host Monitor: a single long-lived worker
// per monitored host that runs the stat command, parses the dump, and
// publishes it into that host's Server State, per spec §4.4.
package monitor

import (
	"context"
	"sync"

	"github.com/netixx/flexsentry/internal/dump"
	"github.com/netixx/flexsentry/internal/license"
	"github.com/netixx/flexsentry/internal/runner"
	"github.com/netixx/flexsentry/internal/xlog"
	"github.com/rs/zerolog"
)

// CommandRunner is the subset of *runner.Runner a Monitor depends on,
// narrowed to keep the worker loop testable without shelling out.
type CommandRunner interface {
	Run(ctx context.Context, cmd string) (runner.Result, error)
}

// Monitor owns one host's Server State and the worker goroutine that
// keeps it up to date. Trigger arms the next cycle (edge-triggered,
// idempotent while already armed); Data blocks until that cycle's result
// is ready and returns a State the caller may read freely.
type Monitor struct {
	host    string
	feature string
	command string

	run      CommandRunner
	state    *license.State
	snapshot *SnapshotSink

	mu      sync.Mutex
	armed   bool
	pending chan struct{}
	running bool

	triggerCh chan struct{}

	lastScannedUsers int
}

// New creates a Monitor for host, running command through r each cycle
// and accumulating usage for feature into a freshly created Server State.
func New(host, feature, command string, r CommandRunner, snapshot *SnapshotSink) *Monitor {
	return &Monitor{
		host:      host,
		feature:   feature,
		command:   command,
		run:       r,
		state:     license.NewState(host),
		snapshot:  snapshot,
		pending:   make(chan struct{}),
		triggerCh: make(chan struct{}, 1),
		running:   true,
	}
}

// Host returns the (canonical) host name this monitor watches.
func (m *Monitor) Host() string { return m.host }

// State exposes the Server State this monitor owns. Only the monitor's
// own worker goroutine mutates it; other goroutines must only read it
// through State's own locking accessor methods.
func (m *Monitor) State() *license.State { return m.state }

// LastScannedUsers returns the number of users observed in the most
// recently completed dump.
func (m *Monitor) LastScannedUsers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastScannedUsers
}

// Trigger arms the next monitoring cycle. It is idempotent: calling it
// again while a cycle is already armed (or running) has no extra effect,
// matching the original's "only set the event if not already set".
func (m *Monitor) Trigger() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.armed {
		return
	}
	m.armed = true
	select {
	case <-m.pending:
		// the previous cycle's channel is already closed: start a fresh one.
		m.pending = make(chan struct{})
	default:
		// no cycle has completed yet: keep the initial channel so Data
		// callers already waiting on it see this cycle's result.
	}
	select {
	case m.triggerCh <- struct{}{}:
	default:
	}
}

// Data blocks until the currently armed (or most recently completed)
// cycle's result is ready, then returns this monitor's Server State. If
// no cycle has ever been triggered, it blocks until the first one
// completes or ctx is canceled.
func (m *Monitor) Data(ctx context.Context) (*license.State, error) {
	m.mu.Lock()
	ch := m.pending
	m.mu.Unlock()

	select {
	case <-ch:
		return m.state, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Terminate stops the worker: it marks the monitor as no longer running
// and signals the trigger channel once to unblock the wait, so the
// worker exits on its next iteration without producing a dump.
func (m *Monitor) Terminate() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	select {
	case m.triggerCh <- struct{}{}:
	default:
	}
}

// Run is the worker loop: it blocks on the trigger channel, runs one
// monitoring cycle per trigger, and exits when Terminate has been called
// or ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	log := xlog.FromContext(ctx, "host-monitor").With().Str("host", m.host).Logger()
	log.Info().Msg("host monitor started")

	for {
		select {
		case <-m.triggerCh:
			m.mu.Lock()
			running := m.running
			m.mu.Unlock()
			if !running {
				log.Info().Msg("host monitor terminated")
				return
			}
			m.runCycle(ctx, log)
		case <-ctx.Done():
			return
		}
	}
}

// runCycle runs the stat command, parses the dump, applies every usage
// line to this monitor's Server State, and replays the relevant lines to
// the shared snapshot sink, per spec §4.2/§4.4.
func (m *Monitor) runCycle(ctx context.Context, log zerolog.Logger) {
	result, err := m.run.Run(ctx, m.command)
	if err != nil {
		log.Warn().Err(err).Msg("failed to run stat command")
		m.cycleDone()
		return
	}
	if result.HasErrors() {
		log.Warn().Str("stderr", result.Stderr).Msg("stat command reported errors")
	}

	lines := result.SplitLines()
	if len(lines) == 0 {
		log.Warn().Msg("no dump received")
		m.cycleDone()
		return
	}

	rec, err := dump.Parse(lines, m.feature)
	if err != nil {
		log.Warn().Err(err).Msg("no dump header found, server state not updated")
		m.cycleDone()
		return
	}

	m.state.SetCounts(rec.Issued, rec.InUse)
	for _, ul := range rec.Lines {
		m.state.AddUsage(rec.Timestamp, ul.UserID, ul.LoginTime, ul.UserMachine, ul.ServingHost)
	}
	m.state.CommitDump(rec.Timestamp)

	log.Info().Int("used", rec.InUse).Int("total", rec.Issued).Msg("dump applied")

	m.mu.Lock()
	m.lastScannedUsers = len(rec.Lines)
	m.mu.Unlock()

	if m.snapshot != nil {
		relevant := make([]string, 0, len(rec.RelevantLines))
		for _, idx := range rec.RelevantLines {
			if idx >= 0 && idx < len(lines) {
				relevant = append(relevant, lines[idx])
			}
		}
		m.snapshot.Replay(m.host, relevant)
	}

	m.cycleDone()
}

// cycleDone disarms the monitor and signals any Data waiters that this
// cycle's result (whether it produced a fresh dump or not) is ready.
func (m *Monitor) cycleDone() {
	m.mu.Lock()
	pending := m.pending
	m.armed = false
	m.mu.Unlock()
	close(pending)
}
