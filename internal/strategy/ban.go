package strategy

import (
	"context"
	"math"
	"time"

	"github.com/netixx/flexsentry/internal/license"
	"github.com/netixx/flexsentry/internal/optfile"
	"github.com/netixx/flexsentry/internal/xlog"
)

// ApplicationState is the per-strategy state machine of spec §3.
type ApplicationState int

// The three application states.
const (
	StateInit ApplicationState = iota
	StateFree
	StateDeny
)

func (s ApplicationState) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateDeny:
		return "DENY"
	default:
		return "INIT"
	}
}

// KeepFreePercentageBanLongUsers bans the longest-running users whenever
// the fleet's free-license percentage drops below minFreePercentage, and
// un-bans them keepStateTimeout after the ban took effect. See spec §4.7.
type KeepFreePercentageBanLongUsers struct {
	keepStateTimeout  time.Duration
	minFreePercentage float64
	maxFreePercentage float64

	currentState ApplicationState
	idealState   ApplicationState
	switchTime   *time.Time
	bannedUsers  []*license.User

	when      time.Time
	whenIsSet bool
}

// NewKeepFreePercentageBanLongUsers creates the ban strategy. maxFreePercentage
// defaults to 1.0 (100%) when given as 0.
func NewKeepFreePercentageBanLongUsers(keepStateTimeout time.Duration, minFreePercentage, maxFreePercentage float64) *KeepFreePercentageBanLongUsers {
	if maxFreePercentage == 0 {
		maxFreePercentage = 1
	}
	return &KeepFreePercentageBanLongUsers{
		keepStateTimeout:  keepStateTimeout,
		minFreePercentage: minFreePercentage,
		maxFreePercentage: maxFreePercentage,
		currentState:      StateInit,
		idealState:        StateFree,
	}
}

// Name identifies this strategy.
func (k *KeepFreePercentageBanLongUsers) Name() string { return "keep-free-percentage-ban-long-users" }

// RequiredServices lists the services this strategy depends on.
func (k *KeepFreePercentageBanLongUsers) RequiredServices() []string {
	return []string{
		ServiceResetUserUsage,
		ServiceGetUserToBan,
		ServiceWriteFlexOptFile,
		ServiceNotifyEvent,
		ServiceScheduleReloadOnce,
		ServiceGetFreePercentage,
		ServiceGetTotalNumberOfUsers,
	}
}

// SetWhen pins the instant this cycle's Apply should treat as "now". It is
// consumed once: after Apply runs, the next cycle defaults back to
// time.Now unless SetWhen is called again.
func (k *KeepFreePercentageBanLongUsers) SetWhen(when time.Time) {
	k.when = when
	k.whenIsSet = true
}

// CurrentState returns the strategy's current application state.
func (k *KeepFreePercentageBanLongUsers) CurrentState() ApplicationState { return k.currentState }

// CurrentIdealState returns the state the strategy computed as ideal this cycle.
func (k *KeepFreePercentageBanLongUsers) CurrentIdealState() ApplicationState { return k.idealState }

// Apply implements the per-cycle algorithm of spec §4.7.
func (k *KeepFreePercentageBanLongUsers) Apply(ctx context.Context, eng *Engine) {
	log := xlog.FromContext(ctx, "strategy.ban")

	if !k.whenIsSet {
		k.SetWhen(time.Now())
	}
	k.whenIsSet = false

	if k.currentState == StateInit {
		k.currentState = StateFree
		log.Info().Msg("ban strategy initialization done")
	}

	freePct := callGetFreePercentage(eng)
	if freePct < k.minFreePercentage {
		k.idealState = StateDeny
	} else {
		k.idealState = StateFree
	}
	log.Debug().Str("current", k.currentState.String()).Str("ideal", k.idealState.String()).Float64("free_pct", freePct).Msg("evaluated ideal state")

	if k.switchTime == nil || k.when.Sub(*k.switchTime) > k.keepStateTimeout {
		if k.currentState == StateDeny && len(k.bannedUsers) > 0 {
			k.unbanUsers(eng)
			if !callScheduleServerReloadOnce(eng) {
				log.Info().Msg("server reload already scheduled")
			}
			k.currentState = StateFree
		}

		if k.currentState != k.idealState {
			if k.idealState == StateDeny {
				log.Info().Msg("switching to DENY")
				k.bannedUsers = callGetUserToBan(eng)
				if len(k.bannedUsers) > 0 {
					totalUsers := callGetTotalNumberOfUsers(eng)
					n := int(math.Floor((k.maxFreePercentage - freePct) * float64(totalUsers)))
					if n <= 0 {
						log.Warn().Msg("maximum free threshold is not high enough, no user will be banned")
					} else {
						if n > len(k.bannedUsers) {
							n = len(k.bannedUsers)
						}
						k.bannedUsers = k.bannedUsers[:n]
						callNotifyEvent(eng, k.bannedUsers, EventBan)
						callWriteFlexOptFile(eng, optfile.GenerateDenyGroup(uids(k.bannedUsers), ""))
					}
				} else {
					log.Warn().Msg("license server is nearly full, but no user can be banned")
				}
			} else {
				log.Info().Msg("switching to FREE")
			}

			if !callScheduleServerReloadOnce(eng) {
				log.Info().Msg("server reload already scheduled")
			}
			k.currentState = k.idealState
			switchTime := k.when
			k.switchTime = &switchTime
		} else {
			log.Info().Str("state", k.currentState.String()).Msg("keeping current state")
		}
	} else {
		log.Info().Str("state", k.currentState.String()).Msg("switch not permitted yet")
	}
}

// Cleanup restores the default option file and un-bans any still-banned
// users, per spec §4.7.
func (k *KeepFreePercentageBanLongUsers) Cleanup(ctx context.Context, eng *Engine) {
	callWriteFlexOptFile(eng, "")
	if len(k.bannedUsers) > 0 {
		callNotifyEvent(eng, k.bannedUsers, EventUnban)
	}
	k.bannedUsers = nil
}

func (k *KeepFreePercentageBanLongUsers) unbanUsers(eng *Engine) {
	callWriteFlexOptFile(eng, "")
	for _, u := range k.bannedUsers {
		callResetUserUsage(eng, u, k.when)
	}
	snapshot := append([]*license.User(nil), k.bannedUsers...)
	callNotifyEvent(eng, snapshot, EventUnban)
	k.bannedUsers = nil
}

func uids(users []*license.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.UID)
	}
	return out
}
