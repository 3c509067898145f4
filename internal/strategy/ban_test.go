package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/netixx/flexsentry/internal/license"
	"github.com/netixx/flexsentry/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersNamed(n int, prefix string) []*license.User {
	out := make([]*license.User, n)
	for i := range out {
		out[i] = license.NewUser(prefix+itoa(i), "M", "H")
	}
	return out
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}

type banTestHarness struct {
	reg               *registry.Registry
	freePct           float64
	totalUsers        int
	toBan             []*license.User
	banNotified       []*license.User
	unbanNotified     []*license.User
	optFileWrites     []string
	resetUsageCalls   int
	reloadCalls       int
}

func newBanHarness() *banTestHarness {
	h := &banTestHarness{reg: registry.New()}
	_ = h.reg.Register(ServiceGetFreePercentage, func(args ...any) any { return h.freePct })
	_ = h.reg.Register(ServiceGetTotalNumberOfUsers, func(args ...any) any { return h.totalUsers })
	_ = h.reg.Register(ServiceGetUserToBan, func(args ...any) any { return h.toBan })
	_ = h.reg.Register(ServiceNotifyEvent, func(args ...any) any {
		users := args[0].([]*license.User)
		switch args[1].(UserEvent) {
		case EventBan:
			h.banNotified = users
		case EventUnban:
			h.unbanNotified = users
		}
		return nil
	})
	_ = h.reg.Register(ServiceWriteFlexOptFile, func(args ...any) any {
		if len(args) == 0 {
			h.optFileWrites = append(h.optFileWrites, "")
		} else {
			h.optFileWrites = append(h.optFileWrites, args[0].(string))
		}
		return nil
	})
	_ = h.reg.Register(ServiceResetUserUsage, func(args ...any) any {
		h.resetUsageCalls++
		return nil
	})
	_ = h.reg.Register(ServiceScheduleReloadOnce, func(args ...any) any {
		h.reloadCalls++
		return true
	})
	return h
}

// Scenario 5: ban cycle.
func TestBanCycle(t *testing.T) {
	h := newBanHarness()
	h.freePct = 0.10
	h.totalUsers = 100
	h.toBan = usersNamed(50, "U")

	eng := NewEngine(h.reg)
	strat := NewKeepFreePercentageBanLongUsers(3600*time.Second, 0.20, 0.40)
	require.NoError(t, eng.AddStrategy(strat, NormalPriority))

	when := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	strat.SetWhen(when)
	strat.Apply(context.Background(), eng)

	require.Len(t, h.banNotified, 30)
	assert.Equal(t, StateDeny, strat.CurrentState())
	require.Len(t, h.optFileWrites, 1)
	assert.Contains(t, h.optFileWrites[0], "GROUP GROUP_DOORS_EXCLUDE")
}

// Scenario 6: unban after timeout.
func TestUnbanAfterTimeout(t *testing.T) {
	h := newBanHarness()
	h.freePct = 0.50

	eng := NewEngine(h.reg)
	strat := NewKeepFreePercentageBanLongUsers(3600*time.Second, 0.20, 0.40)
	require.NoError(t, eng.AddStrategy(strat, NormalPriority))

	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	strat.currentState = StateDeny
	strat.switchTime = &t0
	strat.bannedUsers = usersNamed(30, "U")

	when := t0.Add(3601 * time.Second)
	strat.SetWhen(when)
	strat.Apply(context.Background(), eng)

	require.Len(t, h.unbanNotified, 30)
	assert.Equal(t, 30, h.resetUsageCalls)
	assert.Equal(t, StateFree, strat.CurrentState())
	// the unban writeFlexOptFile(no content) call happens before any
	// further transition write.
	require.NotEmpty(t, h.optFileWrites)
	assert.Equal(t, "", h.optFileWrites[0])
}

func TestBanNoUsersToBanSkipsWrite(t *testing.T) {
	h := newBanHarness()
	h.freePct = 0.05
	h.totalUsers = 10
	h.toBan = nil

	eng := NewEngine(h.reg)
	strat := NewKeepFreePercentageBanLongUsers(3600*time.Second, 0.20, 0.40)
	require.NoError(t, eng.AddStrategy(strat, NormalPriority))
	strat.SetWhen(time.Now())
	strat.Apply(context.Background(), eng)

	assert.Empty(t, h.optFileWrites)
	assert.Empty(t, h.banNotified)
}

func TestBanZeroNumberToBanSkipsWrite(t *testing.T) {
	h := newBanHarness()
	h.freePct = 0.19
	h.totalUsers = 100
	h.toBan = usersNamed(5, "U")

	eng := NewEngine(h.reg)
	// maxFreePercentage equal to minFreePercentage would still give
	// n = floor((0.20 - 0.19) * 100) = 1, so push it negative by using a
	// maxFreePercentage below freePct instead: floor((0.10 - 0.19) * 100) = -9.
	strat := NewKeepFreePercentageBanLongUsers(3600*time.Second, 0.20, 0.10)
	require.NoError(t, eng.AddStrategy(strat, NormalPriority))
	strat.SetWhen(time.Now())
	strat.Apply(context.Background(), eng)

	assert.Empty(t, h.optFileWrites)
	assert.Equal(t, StateDeny, strat.CurrentState())
}

func TestCleanupClearsBannedUsersAndWritesPreamble(t *testing.T) {
	h := newBanHarness()
	eng := NewEngine(h.reg)
	strat := NewKeepFreePercentageBanLongUsers(3600*time.Second, 0.20, 0.40)
	require.NoError(t, eng.AddStrategy(strat, NormalPriority))
	strat.bannedUsers = usersNamed(3, "U")

	strat.Cleanup(context.Background(), eng)

	assert.Empty(t, strat.bannedUsers)
	require.Len(t, h.optFileWrites, 1)
	assert.Equal(t, "", h.optFileWrites[0])
	assert.Len(t, h.unbanNotified, 3)
}

func TestApplyTwiceWithinTimeoutIsIdempotent(t *testing.T) {
	h := newBanHarness()
	h.freePct = 0.5
	eng := NewEngine(h.reg)
	strat := NewKeepFreePercentageBanLongUsers(3600*time.Second, 0.20, 0.40)
	require.NoError(t, eng.AddStrategy(strat, NormalPriority))

	when := time.Now()
	strat.SetWhen(when)
	strat.Apply(context.Background(), eng)
	state1 := strat.CurrentState()
	switchTime1 := strat.switchTime

	strat.SetWhen(when)
	strat.Apply(context.Background(), eng)

	assert.Equal(t, state1, strat.CurrentState())
	assert.Equal(t, switchTime1, strat.switchTime)
}
