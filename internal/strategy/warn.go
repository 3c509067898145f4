package strategy

import (
	"context"
	"time"

	"github.com/netixx/flexsentry/internal/xlog"
)

// WarnUsersBeforeMaxUsageTime warns the users returned by
// getUserBeforeMaxUsage(warnDelay) once the fleet's free-license
// percentage drops below warnThreshold. See spec §4.8.
type WarnUsersBeforeMaxUsageTime struct {
	warnedUsersNum int
	warnThreshold  float64
	warnDelay      time.Duration
}

// NewWarnUsersBeforeMaxUsageTime creates the warn strategy.
func NewWarnUsersBeforeMaxUsageTime(warnThreshold float64, warnDelay time.Duration) *WarnUsersBeforeMaxUsageTime {
	return &WarnUsersBeforeMaxUsageTime{warnThreshold: warnThreshold, warnDelay: warnDelay}
}

// Name identifies this strategy.
func (w *WarnUsersBeforeMaxUsageTime) Name() string { return "warn-users-before-max-usage-time" }

// RequiredServices lists the services this strategy depends on.
func (w *WarnUsersBeforeMaxUsageTime) RequiredServices() []string {
	return []string{ServiceNotifyEvent, ServiceGetFreePercentage, ServiceGetUserBeforeMaxUsage}
}

// WarnedUsersNum returns the total number of warn notifications fired so far.
func (w *WarnUsersBeforeMaxUsageTime) WarnedUsersNum() int { return w.warnedUsersNum }

// Apply implements the per-cycle algorithm of spec §4.8.
func (w *WarnUsersBeforeMaxUsageTime) Apply(ctx context.Context, eng *Engine) {
	log := xlog.FromContext(ctx, "strategy.warn")

	if callGetFreePercentage(eng) >= w.warnThreshold {
		return
	}

	toWarn := callGetUserBeforeMaxUsage(eng, w.warnDelay)
	if len(toWarn) == 0 {
		log.Warn().Msg("warning threshold reached but no user needs warning")
		return
	}

	callNotifyEvent(eng, toWarn, EventWarn)
	w.warnedUsersNum += len(toWarn)
}

// Cleanup is a no-op for this strategy.
func (w *WarnUsersBeforeMaxUsageTime) Cleanup(ctx context.Context, eng *Engine) {}
