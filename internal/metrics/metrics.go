// Package metrics exposes the fleet- and strategy-level Prometheus
// gauges and counters tracked across a monitoring cycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FreePercentage is the fleet-wide free-license fraction, per the
	// getFreePercentage service.
	FreePercentage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flexsentry_free_percentage",
		Help: "Fraction of fleet-wide licenses currently free (0-1).",
	})

	// LicensesTotal and LicensesUsed are the most recent counts observed
	// across the whole fleet, per host.
	LicensesTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flexsentry_licenses_total",
		Help: "Total licenses issued for the monitored feature, by host.",
	}, []string{"host"})

	LicensesUsed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flexsentry_licenses_used",
		Help: "Licenses currently in use for the monitored feature, by host.",
	}, []string{"host"})

	// UsersTracked is the number of users currently tracked per host.
	UsersTracked = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flexsentry_users_tracked",
		Help: "Number of users currently tracked, by host.",
	}, []string{"host"})

	// UsersBanned is the number of users currently in the fleet-wide
	// banned set.
	UsersBanned = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flexsentry_users_banned",
		Help: "Number of users currently banned fleet-wide.",
	})

	// MonitorCycleDuration records how long one Fleet Manager
	// MonitorLicense fan-out/fan-in cycle takes.
	MonitorCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flexsentry_monitor_cycle_duration_seconds",
		Help:    "Duration of one fleet-wide monitoring cycle.",
		Buckets: prometheus.DefBuckets,
	})

	// MonitorCycleErrors counts monitoring cycles that returned an error
	// (waiting for a host's data was canceled or timed out). A failed stat
	// command or dump parse is not counted: that host's cycle still
	// completes.
	MonitorCycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexsentry_monitor_cycle_errors_total",
		Help: "Total monitoring cycles that completed with an error.",
	})

	// NotificationsTotal counts notifications sent, by event kind (ban,
	// unban, warn).
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flexsentry_notifications_total",
		Help: "Total user notifications sent, by event.",
	}, []string{"event"})

	// MailQueueDepth tracks how many messages are currently queued in
	// the Notifier's bounded mail queue.
	MailQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flexsentry_mail_queue_depth",
		Help: "Number of messages currently queued for sending.",
	})

	// ServerRestartsTotal counts Fleet Manager-initiated service
	// restarts, by outcome.
	ServerRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flexsentry_server_restarts_total",
		Help: "Total license server restarts attempted, by outcome.",
	}, []string{"outcome"})

	// StrategyApplyDuration records how long each strategy's Apply call
	// takes per engine cycle.
	StrategyApplyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flexsentry_strategy_apply_duration_seconds",
		Help:    "Duration of a single strategy's Apply call.",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})
)

// ObserveHostState records the per-host gauges (licenses, users) reported
// by the Fleet Manager after a monitoring cycle.
func ObserveHostState(host string, total, used, usersTracked int) {
	LicensesTotal.WithLabelValues(host).Set(float64(total))
	LicensesUsed.WithLabelValues(host).Set(float64(used))
	UsersTracked.WithLabelValues(host).Set(float64(usersTracked))
}
