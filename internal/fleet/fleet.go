// Package fleet implements the Fleet Manager: it owns every monitored
// host's Host Monitor and Server State, drives the reload/restart
// sequence, rewrites the option file, and wires the Strategy Engine's
// required services, per spec §4.5.
package fleet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/netixx/flexsentry/internal/dump"
	"github.com/netixx/flexsentry/internal/license"
	"github.com/netixx/flexsentry/internal/logsaver"
	"github.com/netixx/flexsentry/internal/metrics"
	"github.com/netixx/flexsentry/internal/monitor"
	"github.com/netixx/flexsentry/internal/notify"
	"github.com/netixx/flexsentry/internal/optfile"
	"github.com/netixx/flexsentry/internal/registry"
	"github.com/netixx/flexsentry/internal/runner"
	"github.com/netixx/flexsentry/internal/xlog"
)

// statCommandTemplate builds the lmstat invocation for one host, per spec
// §6's license tool invocation contract.
const statCommandTemplate = "%q lmstat -c %d@%s -f %s"

// Manager is the Fleet Manager. It owns one Host Monitor per configured
// host, a shared option file, and the registry it wires up for the
// Strategy Engine.
type Manager struct {
	cfg      Config
	run      *runner.Runner
	mailer   *notify.Mailer
	logSaver *logsaver.LogSaver
	registry *registry.Registry

	monitors     map[string]*monitor.Monitor
	snapshotSink *monitor.SnapshotSink

	reloadCommands []string

	mu              sync.Mutex
	reloadScheduled bool
	bannedSet       map[string]bool
}

// NewManager validates cfg, builds a Host Monitor per configured host, and
// registers every service the Strategy Engine requires against reg.
func NewManager(cfg Config, r *runner.Runner, mailer *notify.Mailer, logSaver *logsaver.LogSaver, reg *registry.Registry, snapshotLog zerolog.Logger) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:          cfg,
		run:          r,
		mailer:       mailer,
		logSaver:     logSaver,
		registry:     reg,
		monitors:     make(map[string]*monitor.Monitor),
		snapshotSink: monitor.NewSnapshotSink(snapshotLog),
		bannedSet:    make(map[string]bool),
	}

	for _, host := range cfg.HostsToMonitor {
		cmd := fmt.Sprintf(statCommandTemplate, cfg.ToolPath, cfg.Port, host, cfg.FeatureName)
		m.monitors[hostKey(host)] = monitor.New(hostKey(host), cfg.FeatureName, cmd, r, m.snapshotSink)
	}

	m.reloadCommands = []string{
		fmt.Sprintf("%q lmdown -c %d@%s -vendor %s -q", cfg.ToolPath, cfg.Port, cfg.CurrentHost, cfg.Vendor),
		fmt.Sprintf("%q lmreread -c %d@%s -vendor %s", cfg.ToolPath, cfg.Port, cfg.CurrentHost, cfg.Vendor),
	}

	m.registerServices()
	return m, nil
}

func hostKey(host string) string { return strings.ToUpper(host) }

// Monitors exposes the per-host monitors so the caller can start their
// worker goroutines (one per host, per spec §5's concurrency model).
func (m *Manager) Monitors() []*monitor.Monitor {
	out := make([]*monitor.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		out = append(out, mon)
	}
	return out
}

// State returns the Server State for host, or nil if host isn't monitored.
func (m *Manager) State(host string) *license.State {
	if mon, ok := m.monitors[hostKey(host)]; ok {
		return mon.State()
	}
	return nil
}

// Terminate stops every Host Monitor, per spec §5 cancellation model.
func (m *Manager) Terminate() {
	for _, mon := range m.monitors {
		mon.Terminate()
	}
}

// MonitorLicense triggers every Host Monitor (fan-out) then waits for each
// one's data to be ready (fan-in), per spec §5: "within a cycle of
// monitorLicense(), triggers are fired to all hosts, then the manager
// collects by reading each monitor's data. No guarantee on which host
// finishes first."
func (m *Manager) MonitorLicense(ctx context.Context) error {
	log := xlog.FromContext(ctx, "fleet")
	start := time.Now()

	for _, mon := range m.monitors {
		mon.Trigger()
	}

	g, gctx := errgroup.WithContext(ctx)
	activeUsers := make(chan int, len(m.monitors))
	for _, mon := range m.monitors {
		mon := mon
		g.Go(func() error {
			if _, err := mon.Data(gctx); err != nil {
				return fmt.Errorf("fleet: host %s: %w", mon.Host(), err)
			}
			activeUsers <- mon.LastScannedUsers()
			metrics.ObserveHostState(mon.Host(), mon.State().Total(), mon.State().Used(), mon.State().UserCount())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.MonitorCycleErrors.Inc()
		return err
	}
	close(activeUsers)

	total := 0
	for n := range activeUsers {
		total += n
	}
	metrics.MonitorCycleDuration.Observe(time.Since(start).Seconds())
	metrics.FreePercentage.Set(m.getFreePercentage())
	log.Info().Str("feature", m.cfg.FeatureName).Int("active_users", total).Msg("monitoring cycle complete")
	return nil
}

// IsAlive reports whether shost currently has at least one license issued
// for the monitored feature, per spec §6's license tool invocation
// contract.
func (m *Manager) IsAlive(ctx context.Context, shost string) bool {
	log := xlog.FromContext(ctx, "fleet")
	cmd := fmt.Sprintf(statCommandTemplate, m.cfg.ToolPath, m.cfg.Port, shost, m.cfg.FeatureName)
	result, err := m.run.Run(ctx, cmd)
	if err != nil {
		log.Warn().Err(err).Str("host", shost).Msg("isAlive: command failed")
		return false
	}
	rec, err := dump.Parse(result.SplitLines(), m.cfg.FeatureName)
	if err != nil {
		return false
	}
	if rec.Issued > 0 {
		return true
	}
	log.Warn().Str("host", shost).Msg("status line found but number of issued is not strictly positive")
	return false
}

// ReloadServer reloads the license server via lmdown+lmreread, with a 60s
// pause between commands, falling back to a full restart if either
// command errors or the server isn't alive afterward. See spec §6.
func (m *Manager) ReloadServer(ctx context.Context) error {
	log := xlog.FromContext(ctx, "fleet")
	log.Info().Msg("reloading server")

	for i, cmd := range m.reloadCommands {
		log.Debug().Str("cmd", cmd).Msg("sending command")
		if !m.cfg.Mock {
			result, err := m.run.Run(ctx, cmd)
			if err != nil {
				return fmt.Errorf("fleet: reload command failed: %w", err)
			}
			if result.HasErrors() {
				log.Warn().Str("stderr", result.Stderr).Msg("reloading command terminated with errors")
				return m.RestartServer(ctx)
			}
			log.Info().Str("cmd", cmd).Msg("reload command successful")
		}
		if i < len(m.reloadCommands)-1 {
			if err := sleepCtx(ctx, 60*time.Second); err != nil {
				return err
			}
		}
	}

	if !m.IsAlive(ctx, m.cfg.CurrentHost) {
		log.Warn().Msg("server is not alive, restarting")
		return m.RestartServer(ctx)
	}
	return nil
}

// RestartServer backs up the log, stop/starts the license service, and
// merges the backed-up log back in, per spec §4.10/§6.
func (m *Manager) RestartServer(ctx context.Context) error {
	log := xlog.FromContext(ctx, "fleet")

	if m.logSaver != nil {
		if err := m.logSaver.BackupLog(ctx, time.Now()); err != nil {
			log.Warn().Err(err).Msg("log backup failed, continuing with restart")
		}
	}

	log.Info().Msg("restarting server service")
	if !m.cfg.Mock {
		if result, err := m.run.Run(ctx, stopServiceCommand(m.cfg.ServiceName)); err != nil {
			metrics.ServerRestartsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("fleet: stop service: %w", err)
		} else if result.HasErrors() {
			log.Warn().Str("stderr", result.Stderr).Msg("stop command terminated with errors")
		} else {
			log.Info().Msg("service stop successful")
		}

		if result, err := m.run.Run(ctx, startServiceCommand(m.cfg.ServiceName)); err != nil {
			metrics.ServerRestartsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("fleet: start service: %w", err)
		} else if result.HasErrors() {
			log.Warn().Str("stderr", result.Stderr).Msg("restart command terminated with errors")
		} else {
			log.Info().Msg("service start successful")
		}
	}

	if m.logSaver != nil {
		if err := m.logSaver.MergeLastLogs(ctx); err != nil {
			log.Warn().Err(err).Msg("log merge failed")
		}
	}
	metrics.ServerRestartsTotal.WithLabelValues("success").Inc()
	return nil
}

// EnsureServerAvailability reports whether the current host is alive. If
// it is not, it restarts the server and returns false, whatever the
// outcome of the restart.
func (m *Manager) EnsureServerAvailability(ctx context.Context) bool {
	log := xlog.FromContext(ctx, "fleet")
	log.Info().Msg("checking if server is available")
	if !m.IsAlive(ctx, m.cfg.CurrentHost) {
		log.Info().Str("host", m.cfg.CurrentHost).Msg("server is down, attempting restart")
		if err := m.RestartServer(ctx); err != nil {
			log.Warn().Err(err).Msg("restart attempt failed")
		}
		return false
	}
	log.Info().Str("host", m.cfg.CurrentHost).Msg("server is ok")
	return true
}

// WriteFlexOptFile overwrites the option file with the fixed preamble plus
// content, atomically from a reader's perspective via renameio.
func (m *Manager) WriteFlexOptFile(ctx context.Context, content string) error {
	log := xlog.FromContext(ctx, "fleet")

	pending, err := renameio.NewPendingFile(m.cfg.OptionFilePath)
	if err != nil {
		return fmt.Errorf("fleet: open pending option file: %w", err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write([]byte(optfile.Body(content))); err != nil {
		return fmt.Errorf("fleet: write option file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("fleet: replace option file: %w", err)
	}

	log.Info().Str("path", m.cfg.OptionFilePath).Msg("option file rewritten")
	return nil
}

// GenerateDenyGroup delegates to the optfile package, exposed here for
// symmetry with the original's FlexLmManager.generateDenyGroup static
// helper.
func (m *Manager) GenerateDenyGroup(userList []string) string {
	return optfile.GenerateDenyGroup(userList, "")
}

// ConsumeScheduledReload reports whether a reload was requested by a
// strategy since the last call, clearing the flag. The caller (the
// application's run loop) is responsible for actually invoking
// ReloadServer.
func (m *Manager) ConsumeScheduledReload() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.reloadScheduled {
		return false
	}
	m.reloadScheduled = false
	return true
}

// scheduleServerReloadOnce implements the scheduleServerReloadOnce
// service: it returns true the first time it's called since the last
// consumption, and false on every subsequent call until then.
func (m *Manager) scheduleServerReloadOnce() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reloadScheduled {
		return false
	}
	m.reloadScheduled = true
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
